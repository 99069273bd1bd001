// Command registry runs the bootstrap membership service participants
// connect to first, per spec.md §4.4's "Registry view".
package main

import (
	"fmt"
	"os"

	kingpin "gopkg.in/alecthomas/kingpin.v2"

	"github.com/silkit-go/vasio/pkg/vasio/core"
	"github.com/silkit-go/vasio/pkg/vasio/logging"
	"github.com/silkit-go/vasio/pkg/vasio/registry"
	"github.com/silkit-go/vasio/pkg/vasio/uri"
)

var (
	domainID   = kingpin.Flag("domain", "simulation domain id").Default("0").Int()
	listenURI  = kingpin.Flag("registry-uri", "tcp:// or local:// acceptor address").Default("tcp://0.0.0.0:8500").String()
	noDelay    = kingpin.Flag("tcp-nodelay", "disable Nagle's algorithm on accepted sockets").Default("true").Bool()
	quickAck   = kingpin.Flag("tcp-quickack", "enable TCP_QUICKACK on accepted sockets (Linux only)").Default("false").Bool()
	logLevel   = kingpin.Flag("log-level", "info or debug").Default("info").String()
	localSock  = kingpin.Flag("local-socket", "also listen on a domain-derived local:// path").Default("true").Bool()
)

func main() {
	kingpin.Version("vasio-registry 0.1.0")
	kingpin.Parse()

	log := logging.New("registry")
	log.ToggleDebug(*logLevel == "debug")

	u, err := uri.Parse(*listenURI)
	if err != nil {
		log.Fatalf("registry: invalid --registry-uri %q: %v", *listenURI, err)
	}

	transport := core.NewTransport(*noDelay, *quickAck)
	reg := registry.New(log, transport)
	reg.OnEmpty(func() { log.Info("registry: last participant left, census empty") })

	listener, err := transport.Listen(u)
	if err != nil {
		log.Fatalf("registry: listening on %s: %v", u, err)
	}
	defer listener.Close()
	log.Infof("registry: listening on %s (domain %d)", u, *domainID)

	if *localSock {
		localURI := registry.ResolveLocalSocketURI(*domainID)
		localListener, err := transport.Listen(localURI)
		if err != nil {
			log.Warnf("registry: could not open local socket %s: %v", localURI, err)
		} else {
			defer localListener.Close()
			log.Infof("registry: also listening on %s", localURI)
			go func() {
				if err := reg.Serve(localListener); err != nil {
					log.Warnf("registry: local socket accept loop stopped: %v", err)
				}
			}()
		}
	}

	if err := reg.Serve(listener); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
