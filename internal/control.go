package drand

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	json "github.com/nikkolasg/hexjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/drand/drand-verify/chain"
	"github.com/drand/drand-verify/crypto"
	"github.com/drand/drand-verify/drand"
	"github.com/drand/drand-verify/internal/grpc"
	"github.com/drand/drand-verify/internal/httpapi"
	"github.com/drand/drand-verify/internal/lib"
	"github.com/drand/drand-verify/internal/lp2p"
)

func toBeacon(r drand.Result) *chain.Beacon {
	return &chain.Beacon{
		Round:             r.GetRound(),
		Randomness:        r.GetRandomness(),
		Signature:         r.GetSignature(),
		PreviousSignature: r.GetPreviousSignature(),
	}
}

func getPublicRandomness(c *cli.Context) error {
	cl, err := lib.Create(c, false)
	if err != nil {
		return err
	}
	defer cl.Close()

	r, err := cl.Get(c.Context, c.Uint64(roundFlag.Name))
	if err != nil {
		return fmt.Errorf("drand: could not get verified randomness: %w", err)
	}
	return printJSON(c.App.Writer, toBeacon(r))
}

func getChainInfo(c *cli.Context) error {
	cl, err := lib.Create(c, false)
	if err != nil {
		return err
	}
	defer cl.Close()

	info, err := cl.Info(c.Context)
	if err != nil {
		return fmt.Errorf("drand: could not get chain info: %w", err)
	}
	if c.Bool(hashOnly.Name) {
		fmt.Fprintln(c.App.Writer, info.HashString())
		return nil
	}
	return info.ToJSON(c.App.Writer)
}

func verifyCmd(c *cli.Context) error {
	l := lib.Logger(c)
	info, err := lib.ChainInfoFromFile(l, c.Path(lib.ChainInfoFlag.Name))
	if err != nil {
		return err
	}

	var in io.Reader = c.App.Reader
	if path := c.String(beaconFlag.Name); path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	b, err := chain.BeaconFromJSON(in)
	if err != nil {
		return err
	}

	if c.Bool(checkTimeFlag.Name) && chain.TimeOfRound(info, b.Round) > appClock(c).Now().Unix() {
		return fmt.Errorf("%w: round %d is not due before %s", drand.ErrInvalidBeacon,
			b.Round, time.Unix(chain.TimeOfRound(info, b.Round), 0).UTC().Format(time.RFC3339))
	}
	if err := crypto.VerifyBeacon(info.Scheme, info.PublicKey, b); err != nil {
		return fmt.Errorf("%w: round %d: %w", drand.ErrFailedVerification, b.Round, err)
	}
	l.Debugw("beacon verified", "round", b.Round, "chain", info.HashString())
	fmt.Fprintf(c.App.Writer, "round %d verified for chain %s\n", b.Round, info.HashString())
	return nil
}

func roundCmd(c *cli.Context) error {
	info, err := lib.ChainInfoFromFile(lib.Logger(c), c.Path(lib.ChainInfoFlag.Name))
	if err != nil {
		return err
	}

	if c.IsSet(roundFlag.Name) {
		round := c.Uint64(roundFlag.Name)
		at := time.Unix(chain.TimeOfRound(info, round), 0).UTC()
		fmt.Fprintf(c.App.Writer, "round %d is emitted at %s (%d)\n", round, at.Format(time.RFC3339), at.Unix())
		return nil
	}

	t := appClock(c).Now()
	if ts := c.Timestamp(timeFlag.Name); ts != nil {
		t = *ts
	}
	round, err := chain.RoundForTime(info, t)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "round %d is current at %s\n", round, t.UTC().Format(time.RFC3339))
	return nil
}

func schemesCmd(c *cli.Context) error {
	fmt.Fprintf(c.App.Writer, "drand-verify supports the following list of schemes: \n")

	for i, id := range crypto.ListSchemes() {
		fmt.Fprintf(c.App.Writer, "%d) %s \n", i, id)
	}
	return nil
}

func relayCmd(c *cli.Context) error {
	l := lib.Logger(c).Named("relay")
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cl, err := lib.Create(c, true)
	if err != nil {
		return err
	}
	defer cl.Close()

	info, err := cl.Info(ctx)
	if err != nil {
		return fmt.Errorf("drand: could not get chain info: %w", err)
	}

	dataDir := c.String(storeFlag.Name)
	if dataDir == "" {
		dataDir, err = lp2p.TempDataDir()
		if err != nil {
			return err
		}
		defer os.RemoveAll(dataDir)
	}

	node, err := lp2p.NewGossipRelayNode(l, &lp2p.GossipRelayConfig{
		ChainHash:    info.HashString(),
		PeerWith:     c.StringSlice(peerWithFlag.Name),
		Addr:         c.String(listenFlag.Name),
		DataDir:      dataDir,
		IdentityPath: c.String(identityFlag.Name),
		Client:       cl,
	})
	if err != nil {
		return fmt.Errorf("drand: starting relay: %w", err)
	}
	defer node.Shutdown()
	for _, a := range node.Multiaddrs() {
		fmt.Fprintf(c.App.Writer, "relay listening on %s\n", a)
	}

	g, ctx := errgroup.WithContext(ctx)

	if bind := c.String(httpBindFlag.Name); bind != "" {
		handler := httpapi.New(l)
		handler.RegisterBeaconHandler(cl, info.HashString())
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}))
		mux.Handle("/", handler)
		srv := &http.Server{Addr: bind, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			l.Infow("serving public HTTP API", "addr", bind)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	if bind := c.String(grpcBindFlag.Name); bind != "" {
		lis, err := net.Listen("tcp", bind)
		if err != nil {
			return err
		}
		srv := grpc.NewPublicServer(l, cl)
		g.Go(func() error {
			l.Infow("serving public gRPC API", "addr", lis.Addr().String())
			return srv.Serve(lis)
		})
		g.Go(func() error {
			<-ctx.Done()
			srv.GracefulStop()
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	return g.Wait()
}

func printJSON(w io.Writer, j interface{}) error {
	buff, err := json.MarshalIndent(j, "", "    ")
	if err != nil {
		return fmt.Errorf("could not JSON marshal: %w", err)
	}
	fmt.Fprintln(w, string(buff))
	return nil
}
