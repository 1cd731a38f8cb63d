// Package sshproxy connects to an intermediary SSH host used to reach
// restricted cluster networks.
//
// A Proxy runs commands on the host, uploads files into the remote user's
// home directory and tunnels TCP connections, which lets the scheduler RPC
// connection and the shared filesystem commands share one SSH session.
package sshproxy
