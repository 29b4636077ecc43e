//go:build js

package transport

// Browsers do not expose raw sockets to wasm programs.
const nativeSockets = false
