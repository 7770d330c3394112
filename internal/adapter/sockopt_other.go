//go:build !unix

package adapter

import "syscall"

func reuseAddr(network, address string, c syscall.RawConn) error {
	return nil
}
