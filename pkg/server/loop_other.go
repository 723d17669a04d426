//go:build !linux && !darwin

package server

import (
	"context"
	"errors"
	"net"
)

var errUnsupported = errors.New("the event loop requires linux or darwin")

type sysState struct{}

func (s *Server) open() (net.Addr, error) { return nil, errUnsupported }

func (s *Server) release() {}

func (s *Server) wake() {}

func (s *Server) run(context.Context) error { return errUnsupported }

func (s *Server) connFDs() []int { return nil }

func (s *Server) closeConn(int, string, error) {}

func (c fdConn) Write([]byte) (int, error) { return 0, errUnsupported }
