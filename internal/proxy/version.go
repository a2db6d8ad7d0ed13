package proxy

// Version is the proxy's wire-visible version, carried over from
// original_source/nagato.py's __version__ since it appears in every
// Proxy-Agent response header a client may parse.
const Version = "0.6.0"

// ProxyAgent is the value of the Proxy-Agent header this proxy attaches
// to every response it originates itself (CONNECT 200/504, 307 retry).
const ProxyAgent = "Nagato/" + Version
