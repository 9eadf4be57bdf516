// Command coven-inbox is a terminal client for two-party conversations
// kept in sync with a remote store by polling.
//
// It reads the same config file as coven-inbox-server (see config.Path)
// and needs the remote section:
//
//	remote:
//	  url: "http://127.0.0.1:8480"
//	  viewer_id: "alice"
//	  token: "${COVEN_INBOX_TOKEN}"
//
// Logs go to logging.file, or to $XDG_STATE_HOME/coven/inbox.log when
// unset, so they never draw over the UI.
package main
