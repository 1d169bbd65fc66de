package main

import (
	"log/slog"
	"net"
	"slices"
)

// lanIPv4 — внешние IPv4 адреса хоста, без loopback и дублей.
func lanIPv4() []string {
	ifaces, err := net.Interfaces()
	if err != nil {
		slog.Warn("list interfaces", "err", err)
		return nil
	}

	var out []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipnet.IP.To4(); ip4 != nil && !ip4.IsLoopback() {
				out = append(out, ip4.String())
			}
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func printBanner(port string) {
	slog.Info("co-op relay started", "url", "ws://0.0.0.0:"+port)
	slog.Info("local", "url", "ws://localhost:"+port)
	for _, ip := range lanIPv4() {
		slog.Info("lan", "url", "ws://"+net.JoinHostPort(ip, port))
	}
}
