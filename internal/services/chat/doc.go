// Package chat relays room messages over websockets and answers `!roll `
// messages with the dice engine.
//
// Rooms are in-memory relays. Roll replies are posted into the room as bot
// messages so every participant sees the same result.
package chat
