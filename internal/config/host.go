package config

import "net"

// splitHost splits a host:port address into its host and port portions.
func splitHost(addr string) (string, string, error) {
	return net.SplitHostPort(addr)
}
