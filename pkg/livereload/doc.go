// Package livereload is the push channel previews use to learn about
// source changes.
//
// Clients connect to /ws and receive {"type":"connected"}. A
// {"type":"register","projectPath":p} message starts a recursive watch of
// p; every written or created file below a watched root is then broadcast
// to all clients as {"type":"fileChanged","path":...}. Paths matching the
// ignore globs (dotfiles by default) never trigger a broadcast.
//
// /health reports the client count and /metrics serves the Prometheus
// registry the server was built with.
package livereload
