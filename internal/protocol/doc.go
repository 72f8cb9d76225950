// Package protocol is the broker's wire format. Fields are separated by the
// ASCII unit separator (0x1F); each field is trimmed of control bytes and
// spaces at both ends. One frame per TCP read or websocket message.
//
// Client -> Broker
//
//	create: nickname, max_players, is_public (0|1), player_id, room_name
//	join:   nickname, room_code, player_id
//	ready:  room_code, player_id, status (0|1)
//	start:  room_code
//	list:   (no fields)
//	exit:   player_id
//
// Broker -> Client
//
//	rc: room_code
//	jr: port, room_name
//	rd: one group per player, "id,nickname,ordinal,ready"
//	gs: port
//	ll: one group per public lobby, "code,name,players,max_players"
//
// Anything else the broker sends is a plain human-readable error line.
package protocol
