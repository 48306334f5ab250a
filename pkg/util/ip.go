package util

import "net"

// IsValidIPv4 checks if a string is a valid IPv4 address.
func IsValidIPv4(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	return ip != nil && ip.To4() != nil
}

// IsValidIPLiteral checks if a string is a valid IPv4 or IPv6 address
// literal, as required of a DeviceRecord's management address.
func IsValidIPLiteral(ipStr string) bool {
	return net.ParseIP(ipStr) != nil
}
