// Package document implements the scene shown by the display server.
//
// A scene has a title, a pad size and an ordered list of objects. Each
// object is addressable by id from the viewers: it answers context menu
// requests and executes instructions such as SetAttr(color,red). Every
// mutation advances the document version, which the serving loop turns
// into update requests.
//
// Scenes are loaded from YAML (strict, unknown fields rejected) or CUE.
// Snapshots are JSON pad display items rendered by the viewer scripts.
package document
