package director

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ListenAndServe binds cfg.Addr and serves runs until ctx is cancelled, or
// after the first run when cfg.Once is set.
func (d *Director) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", d.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.cfg.Addr, err)
	}
	defer ln.Close()
	return d.Serve(ctx, ln)
}

// Serve accepts one connection at a time on ln. A failed run is logged and,
// unless cfg.Once is set, the next connection is accepted. Cancelling ctx
// closes ln and any connection in progress.
func (d *Director) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for {
		d.setState(Listening)
		d.logger.Info("listening", "addr", ln.Addr().String())

		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		err = d.serveConn(ctx, conn)
		if d.cfg.Once {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (d *Director) serveConn(ctx context.Context, conn net.Conn) error {
	defer conn.Close()
	logger := d.logger.With("peer", conn.RemoteAddr().String())
	logger.Info("renderer connected")

	// a blocked write only returns once the connection is closed
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	report, err := d.Run(ctx, conn)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			logger.Info("run cancelled", "report", report.String())
			return nil
		case errors.Is(err, ErrPeerDisconnected):
			logger.Warn("renderer disconnected", "report", report.String(), "error", err)
		default:
			logger.Error("run failed", "report", report.String(), "error", err)
		}
		return err
	}
	logger.Info("run finished", "report", report.String())
	return nil
}
