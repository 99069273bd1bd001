// Command participant joins a simulation domain: it connects to the
// registry, learns the current census, connects to every other
// participant, and accepts connections from participants that join
// afterwards.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	kingpin "gopkg.in/alecthomas/kingpin.v2"

	"github.com/silkit-go/vasio/pkg/vasio/config"
	"github.com/silkit-go/vasio/pkg/vasio/core"
	"github.com/silkit-go/vasio/pkg/vasio/logging"
	"github.com/silkit-go/vasio/pkg/vasio/registry"
	"github.com/silkit-go/vasio/pkg/vasio/sim/can"
	"github.com/silkit-go/vasio/pkg/vasio/sim/rpc"
	"github.com/silkit-go/vasio/pkg/vasio/sync"
	"github.com/silkit-go/vasio/pkg/vasio/types"
	"github.com/silkit-go/vasio/pkg/vasio/uri"
)

var (
	domainID      = kingpin.Flag("domain", "simulation domain id").Default("0").Int()
	registryURI   = kingpin.Flag("registry-uri", "tcp:// or local:// registry address").Default("tcp://127.0.0.1:8500").String()
	configPath    = kingpin.Flag("config", "path to a participant configuration YAML document").String()
	participant   = kingpin.Flag("name", "participant name, overrides --config's participantName").String()
	acceptorHost  = kingpin.Flag("acceptor-host", "host this participant's own acceptor listens on").Default("127.0.0.1").String()
	acceptorPort  = kingpin.Flag("acceptor-port", "port this participant's own acceptor listens on, 0 for an ephemeral port").Default("0").Uint16()
	enableLocal   = kingpin.Flag("local-socket", "also advertise a local:// acceptor").Default("true").Bool()
	logLevel      = kingpin.Flag("log-level", "info or debug").Default("info").String()
)

func main() {
	kingpin.Version("vasio-participant 0.1.0")
	kingpin.Parse()

	cfg := loadConfig()
	log := logging.New(string(cfg.ParticipantName))
	log.ToggleDebug(cfg.Logging.Level == "debug" || *logLevel == "debug")

	transport := core.NewTransport(cfg.Middleware.TcpNoDelay, cfg.Middleware.TcpQuickAck)

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", *acceptorHost, *acceptorPort))
	if err != nil {
		log.Fatalf("participant: opening acceptor: %v", err)
	}
	defer listener.Close()

	localInfo := types.PeerInfo{
		ParticipantName: cfg.ParticipantName,
		ParticipantId:   types.HashParticipantName(cfg.ParticipantName),
		AcceptorUris:    []string{fmt.Sprintf("tcp://%s", listener.Addr())},
	}
	if *enableLocal {
		localInfo.AcceptorUris = append(localInfo.AcceptorUris, registry.ResolveLocalSocketURI(*domainID).String())
	}

	conn := core.NewConnection(localInfo, transport, log)
	conn.OnPeerLost(func(id types.ParticipantId, name types.ParticipantName, err error) {
		log.Warnf("participant: lost connection to %s: %v", name, err)
		publishPeerLostStatus(conn, name)
	})

	go acceptLoop(conn, listener, log)

	regURI, err := uri.Parse(cfg.Middleware.RegistryUri)
	if err != nil {
		regURI, err = uri.Parse(*registryURI)
	}
	if err != nil {
		log.Fatalf("participant: invalid registry uri: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := core.JoinDomain(ctx, conn, regURI); err != nil {
		log.Fatalf("participant: joining domain: %v", err)
	}
	log.Infof("participant: %s joined domain %d", cfg.ParticipantName, *domainID)

	createControllers(conn, cfg)
	publishStatus(conn, cfg.ParticipantName, sync.ParticipantStateRunning, "startup complete")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	publishStatus(conn, cfg.ParticipantName, sync.ParticipantStateShuttingDown, "received termination signal")
	conn.Shutdown()
}

// createControllers materializes the CAN and RPC VirtualLinks this
// participant's configuration names, per ParticipantConfiguration's
// canControllers/rpcClients entries.
func createControllers(conn *core.Connection, cfg config.ParticipantConfiguration) {
	for _, c := range cfg.CanControllers {
		can.Link(conn, c.Network)
	}
	for _, c := range cfg.RpcClients {
		rpc.CallLink(conn, c.Network)
		rpc.ResponseLink(conn, c.Network)
	}
}

// publishStatus broadcasts this participant's lifecycle state on the
// well-known sync status network, which late joiners replay via the link's
// one-deep history.
func publishStatus(conn *core.Connection, name types.ParticipantName, state sync.ParticipantState, reason string) {
	statusLink := sync.StatusLink(conn)
	now := time.Now()
	status := sync.ParticipantStatus{
		ParticipantName: string(name),
		State:           state,
		Reason:          reason,
		EnterTime:       now,
		RefreshTime:     now,
	}
	done := make(chan struct{})
	conn.ExecuteDeferred(func() {
		defer close(done)
		_ = statusLink.DistributeLocalMessage(types.EndpointAddress{Participant: conn.LocalInfo().ParticipantId}, status)
	})
	<-done
}

// publishPeerLostStatus synthesizes the departed peer's lifecycle status
// as Error/"Connection Lost" onto the sync status link, since nothing else
// observes that peer's lifecycle once its own process is gone. OnPeerLost
// already runs on conn's reactor goroutine, so this uses StatusLinkAsync
// rather than the blocking StatusLink — going through ExecuteDeferred and
// waiting here would deadlock the reactor against itself.
func publishPeerLostStatus(conn *core.Connection, name types.ParticipantName) {
	statusLink := sync.StatusLinkAsync(conn)
	now := time.Now()
	status := sync.ParticipantStatus{
		ParticipantName: string(name),
		State:           sync.ParticipantStateError,
		Reason:          "Connection Lost",
		EnterTime:       now,
		RefreshTime:     now,
	}
	_ = statusLink.DistributeLocalMessage(types.EndpointAddress{Participant: conn.LocalInfo().ParticipantId}, status)
}

func loadConfig() config.ParticipantConfiguration {
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "participant: %v\n", err)
			os.Exit(1)
		}
		if *participant != "" {
			cfg.ParticipantName = types.ParticipantName(*participant)
		}
		return cfg
	}
	if *participant == "" {
		fmt.Fprintln(os.Stderr, "participant: --name or --config is required")
		os.Exit(1)
	}
	return config.Default(types.ParticipantName(*participant))
}

func acceptLoop(conn *core.Connection, listener net.Listener, log types.Logger) {
	for {
		nc, err := listener.Accept()
		if err != nil {
			log.Warnf("participant: acceptor loop stopped: %v", err)
			return
		}
		peer := core.NewPeer(nc, log)
		conn.AcceptPeer(peer)
	}
}
