package modbus

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/devskill-org/solar-fleet-sim/plant"
	"github.com/devskill-org/solar-fleet-sim/state"
)

// Snapshotter is the minimal view of the shared Store the Modbus
// server needs: one coherent snapshot of every plant's latest record,
// taken once per request so that both words of a float field always
// come from the same sample.
type Snapshotter interface {
	GetAll() map[string]plant.Data
}

var _ Snapshotter = (*state.Store)(nil)

// Server is the read-only Modbus/TCP server (C5).
type Server struct {
	addr   string
	store  Snapshotter
	regMap *registerMap
	logger *log.Logger
}

// NewServer builds a Server listening on addr, serving the given
// modbus_base_address -> plantID configuration.
func NewServer(addr string, store Snapshotter, plantBaseAddresses map[uint16]string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		addr:   addr,
		store:  store,
		regMap: newRegisterMap(plantBaseAddresses),
		logger: logger,
	}
}

// Run accepts and serves connections until ctx is cancelled or the
// listener fails. It blocks until every in-flight connection handler
// has drained.
func (s *Server) Run(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("modbus: listen on %s: %w", s.addr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})

	s.logger.Printf("[modbus] listening on %s", s.addr)

	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return err
			}
			g.Go(func() error {
				s.handleConn(gctx, conn)
				return nil
			})
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		req, err := readADU(conn)
		if err != nil {
			return
		}

		resp := s.process(req)
		if _, err := conn.Write(resp.marshal()); err != nil {
			return
		}
	}
}

// process dispatches one request ADU: function codes 3 and 4 are
// served identically from the same register-resolution logic; any
// other function code yields ExceptionIllegalFunction.
func (s *Server) process(req *adu) *adu {
	switch req.FunctionCode {
	case FuncReadHoldingRegisters, FuncReadInputRegisters:
		return s.readRegisters(req)
	default:
		return exceptionADU(req, ExceptionIllegalFunction)
	}
}

func (s *Server) readRegisters(req *adu) *adu {
	if len(req.Data) < 4 {
		return exceptionADU(req, ExceptionIllegalFunction)
	}
	startAddr := uint16(req.Data[0])<<8 | uint16(req.Data[1])
	count := uint16(req.Data[2])<<8 | uint16(req.Data[3])

	// One coherent snapshot per request: both words of any float
	// field, and every register in a multi-register read, come from
	// the same sample.
	snapshot := s.store.GetAll()

	payload := make([]byte, 1+int(count)*2)
	payload[0] = byte(count * 2)
	for i := uint16(0); i < count; i++ {
		word := s.regMap.resolveWord(startAddr+i, snapshot)
		payload[1+i*2] = byte(word >> 8)
		payload[1+i*2+1] = byte(word & 0xFF)
	}

	return &adu{mbapHeader: req.mbapHeader, FunctionCode: req.FunctionCode, Data: payload}
}
