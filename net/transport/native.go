//go:build !js

package transport

const nativeSockets = true
