package core

import "time"

// PendingMatchWindow bounds how far apart a pending message and its server
// echo may be timestamped and still be treated as the same message.
const PendingMatchWindow = 2 * time.Minute

// matchesPending reports whether confirmed is the server echo of pending.
func matchesPending(pending, confirmed Message) bool {
	if !pending.Pending() || confirmed.Pending() {
		return false
	}
	if pending.SenderID != confirmed.SenderID || pending.Content != confirmed.Content {
		return false
	}
	if pending.RoomID != "" && confirmed.RoomID != "" && pending.RoomID != confirmed.RoomID {
		return false
	}
	d := confirmed.SentAt.Sub(pending.SentAt)
	if d < 0 {
		d = -d
	}
	return d <= PendingMatchWindow
}

// appendMessage adds msg to the sequence. A message whose server ID is
// already present is ignored; a confirmed message matching a pending entry
// replaces that entry in place. Reports whether the sequence changed.
func appendMessage(msgs []Message, msg Message) ([]Message, bool) {
	if msg.ID != "" {
		for _, m := range msgs {
			if m.ID == msg.ID {
				return msgs, false
			}
		}
	}

	out := make([]Message, len(msgs), len(msgs)+1)
	copy(out, msgs)

	if !msg.Pending() {
		for i, m := range out {
			if matchesPending(m, msg) {
				confirmed := msg.Clone()
				if confirmed.LocalID == "" {
					confirmed.LocalID = m.LocalID
				}
				out[i] = confirmed
				return out, true
			}
		}
	}

	return append(out, msg.Clone()), true
}

// mergeHistory combines a fetched history with what the store already
// holds for the same room. Messages appended by live events while the
// fetch was in flight survive, and nothing is duplicated.
func mergeHistory(fetched, held []Message) []Message {
	out := make([]Message, 0, len(fetched)+len(held))
	seen := make(map[string]struct{}, len(fetched))
	for _, m := range fetched {
		if m.ID != "" {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
		}
		out = append(out, m.Clone())
	}

	for _, m := range held {
		if m.Pending() {
			confirmed := false
			for _, f := range fetched {
				if matchesPending(m, f) {
					confirmed = true
					break
				}
			}
			if !confirmed {
				out = append(out, m.Clone())
			}
			continue
		}
		if m.ID == "" {
			continue
		}
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m.Clone())
	}
	return out
}

// mergeMeta picks which copy of a room's metadata wins. Without versions on
// both sides the incoming copy wins; otherwise an older incoming copy loses.
func mergeMeta(held, incoming Room) Room {
	if held.Version != 0 && incoming.Version != 0 && incoming.Version < held.Version {
		return held
	}
	return incoming
}

// mergeRoomList replaces the list with incoming, keeping held entries whose
// version is newer than the snapshot's, and returns it sorted.
func mergeRoomList(held, incoming []Room) []Room {
	out := make([]Room, 0, len(incoming))
	seen := make(map[string]struct{}, len(incoming))
	for _, r := range incoming {
		if r.ID == "" {
			continue
		}
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		if i := indexOfRoom(held, r.ID); i >= 0 {
			r = mergeMeta(held[i], r)
		}
		out = append(out, r.Clone())
	}
	sortRooms(out)
	return out
}
