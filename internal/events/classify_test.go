package events_test

import (
	"errors"
	"testing"

	"github.com/danhigham/vkplay/internal/events"
)

func mustRecord(t *testing.T, s string) events.Record {
	t.Helper()
	r, err := events.ParseRecord([]byte(s))
	if err != nil {
		t.Fatalf("ParseRecord(%s) error: %v", s, err)
	}
	return r
}

func TestClassify_EditMessage(t *testing.T) {
	ev := events.Classify(mustRecord(t, `[5, 10, 0, 99, 1000, "hi", 7]`))

	msg, ok := ev.(events.MessageEvent)
	if !ok {
		t.Fatalf("got %T, want MessageEvent", ev)
	}
	if msg.Kind != events.MessageEdit {
		t.Errorf("Kind = %v, want edit", msg.Kind)
	}
	if msg.MessageID != 10 || msg.Flags != 0 || msg.PeerID != 99 || msg.Timestamp != 1000 {
		t.Errorf("got id=%d flags=%d peer=%d ts=%d, want 10 0 99 1000",
			msg.MessageID, msg.Flags, msg.PeerID, msg.Timestamp)
	}
	if msg.Text != "hi" {
		t.Errorf("Text = %q, want %q", msg.Text, "hi")
	}
	if msg.RandomID != 7 {
		t.Errorf("RandomID = %d, want 7", msg.RandomID)
	}
	if msg.Attachments != nil {
		t.Errorf("Attachments = %v, want nil", msg.Attachments)
	}
	if msg.Channel() != events.ChannelEditMessage {
		t.Errorf("Channel = %q, want %q", msg.Channel(), events.ChannelEditMessage)
	}
}

func TestClassify_MessageKindFollowsCode(t *testing.T) {
	tests := []struct {
		raw     string
		kind    events.MessageKind
		channel events.Channel
	}{
		{`[4, 1, 3, 5, 6, "a", 0]`, events.MessageReceive, events.ChannelMessagesReceived},
		{`[5, 1, 3, 5, 6, "a", 0]`, events.MessageEdit, events.ChannelEditMessage},
	}
	for _, tt := range tests {
		msg, ok := events.Classify(mustRecord(t, tt.raw)).(events.MessageEvent)
		if !ok {
			t.Fatalf("%s: not a MessageEvent", tt.raw)
		}
		if msg.Kind != tt.kind {
			t.Errorf("%s: Kind = %v, want %v", tt.raw, msg.Kind, tt.kind)
		}
		if msg.Channel() != tt.channel {
			t.Errorf("%s: Channel = %q, want %q", tt.raw, msg.Channel(), tt.channel)
		}
	}
}

func TestClassify_MessageWithAttachments(t *testing.T) {
	ev := events.Classify(mustRecord(t, `[4, 11, 3, 2000000001, 1500, "look", {"attach1_type":"audio","attach1":"1_2"}, 42]`))
	msg, ok := ev.(events.MessageEvent)
	if !ok {
		t.Fatalf("got %T, want MessageEvent", ev)
	}
	if msg.Attachments["attach1_type"] != "audio" || msg.Attachments["attach1"] != "1_2" {
		t.Errorf("Attachments = %v", msg.Attachments)
	}
	if msg.RandomID != 42 {
		t.Errorf("RandomID = %d, want 42", msg.RandomID)
	}
	if !msg.Outgoing() {
		t.Error("Outgoing() = false for flags with outbox bit")
	}
}

func TestClassify_MessageFullLayout(t *testing.T) {
	ev := events.Classify(mustRecord(t, `[4, 12, 1, 77, 1600, "yo", {"title":" ... ","from":"5"}, {"fwd":0}, 9, 120, 0]`))
	msg, ok := ev.(events.MessageEvent)
	if !ok {
		t.Fatalf("got %T, want MessageEvent", ev)
	}
	if msg.Extra["from"] != "5" {
		t.Errorf("Extra[from] = %q, want 5", msg.Extra["from"])
	}
	if msg.Attachments["fwd"] != "0" {
		t.Errorf("Attachments[fwd] = %q, want raw 0", msg.Attachments["fwd"])
	}
	if msg.RandomID != 9 {
		t.Errorf("RandomID = %d, want 9", msg.RandomID)
	}
}

func TestClassify_Malformed(t *testing.T) {
	tests := []string{
		`[4, 10, 0, 99, 1000, "hi"]`,       // too short
		`[5, "10", 0, 99, 1000, "hi", 7]`,  // id is a string
		`[5, 10, 0, 99, 1000, 5, 7]`,       // text is a number
		`[4, 10, 0, 99, 1000, "hi", 1, 7]`, // attachments not an object
		`[6, 1]`,
		`[8, -5, "x", 100]`,
		`[114, 5]`,
		`[114, {"sound": 1}]`,
		`[]`,
		`["4"]`,
	}
	for _, raw := range tests {
		ev := events.Classify(mustRecord(t, raw))
		if _, ok := ev.(events.Malformed); !ok {
			t.Errorf("%s: got %T, want Malformed", raw, ev)
		}
		if ev.Channel() != "" {
			t.Errorf("%s: Channel = %q, want empty", raw, ev.Channel())
		}
	}
}

func TestClassify_MalformedWrapsFieldType(t *testing.T) {
	ev := events.Classify(mustRecord(t, `[5, "10", 0, 99, 1000, "hi", 7]`))
	m, ok := ev.(events.Malformed)
	if !ok {
		t.Fatalf("got %T, want Malformed", ev)
	}
	if !errors.Is(m.Err, events.ErrFieldType) {
		t.Errorf("Err = %v, want ErrFieldType", m.Err)
	}
	if m.TypeCode != 5 {
		t.Errorf("TypeCode = %d, want 5", m.TypeCode)
	}
}

func TestClassify_Unrecognized(t *testing.T) {
	for _, raw := range []string{`[2, 1, 2, 3]`, `[3, 1]`, `[999]`, `[80, 3, 0]`} {
		ev := events.Classify(mustRecord(t, raw))
		u, ok := ev.(events.Unrecognized)
		if !ok {
			t.Errorf("%s: got %T, want Unrecognized", raw, ev)
			continue
		}
		if events.Known(u.TypeCode) {
			t.Errorf("%s: Known(%d) = true", raw, u.TypeCode)
		}
	}
}

func TestClassify_ReadStatus(t *testing.T) {
	ev := events.Classify(mustRecord(t, `[7, 300, 55]`))
	rs, ok := ev.(events.ReadStatusEvent)
	if !ok {
		t.Fatalf("got %T, want ReadStatusEvent", ev)
	}
	if rs.EventType != 7 || rs.PeerID != 300 || rs.MessageID != 55 {
		t.Errorf("got %+v", rs)
	}
	if rs.Incoming() {
		t.Error("Incoming() = true for code 7")
	}
}

func TestClassify_Online(t *testing.T) {
	ev := events.Classify(mustRecord(t, `[8, -123, 260, 1700000000]`))
	on, ok := ev.(events.OnlineStatusEvent)
	if !ok {
		t.Fatalf("got %T, want OnlineStatusEvent", ev)
	}
	if !on.IsOnline || on.PeerID != 123 || on.Timestamp != 1700000000 {
		t.Errorf("got %+v", on)
	}
	// 260 & 0xFF == 4
	if on.DeviceNumber != 4 || on.Platform != "android" {
		t.Errorf("device = %d/%q, want 4/android", on.DeviceNumber, on.Platform)
	}

	off := events.Classify(mustRecord(t, `[9, -123, 1, 1700000100]`)).(events.OnlineStatusEvent)
	if off.IsOnline {
		t.Error("IsOnline = true for code 9")
	}
	if off.Code() != events.CodeFriendOffline {
		t.Errorf("Code = %d, want 9", off.Code())
	}
}

func TestClassify_Typing(t *testing.T) {
	dlg := events.Classify(mustRecord(t, `[61, 42, 1]`)).(events.TypingEvent)
	if dlg.PeerID != 42 || !dlg.IsTyping || dlg.InChat {
		t.Errorf("dialog typing = %+v", dlg)
	}

	chat := events.Classify(mustRecord(t, `[62, 42, 7]`)).(events.TypingEvent)
	if chat.PeerID != 2000000007 || chat.UserID != 42 || !chat.InChat {
		t.Errorf("chat typing = %+v", chat)
	}
	if chat.Code() != events.CodeTypingChat {
		t.Errorf("Code = %d, want 62", chat.Code())
	}
}

func TestClassify_OrderIDs(t *testing.T) {
	major := events.Classify(mustRecord(t, `[20, 15, 300]`)).(events.MajorOrderEvent)
	if major.PeerID != 15 || major.MajorID != 300 {
		t.Errorf("major = %+v", major)
	}
	minor := events.Classify(mustRecord(t, `[21, 15, 4]`)).(events.MinorOrderEvent)
	if minor.PeerID != 15 || minor.MinorID != 4 {
		t.Errorf("minor = %+v", minor)
	}
}

func TestClassify_NotificationSettings(t *testing.T) {
	ev := events.Classify(mustRecord(t, `[114, {"peer_id": 2000000003, "sound": 1, "disabled_until": -1}]`))
	ns, ok := ev.(events.NotificationSettingsEvent)
	if !ok {
		t.Fatalf("got %T, want NotificationSettingsEvent", ev)
	}
	if ns.PeerID != 2000000003 || ns.DisabledUntil != -1 || !ns.Muted || !ns.Sound {
		t.Errorf("got %+v", ns)
	}

	unmuted := events.Classify(mustRecord(t, `[114, {"peer_id": 5, "sound": 0, "disabled_until": 0}]`)).(events.NotificationSettingsEvent)
	if unmuted.Muted {
		t.Error("Muted = true for disabled_until 0")
	}
}

func TestParseBatch(t *testing.T) {
	batch, err := events.ParseBatch([]byte(`[[4, 1, 0, 2, 3, "x", 0], [61, 2, 1], [999]]`))
	if err != nil {
		t.Fatalf("ParseBatch() error: %v", err)
	}
	if len(batch) != 3 {
		t.Fatalf("got %d records, want 3", len(batch))
	}
	if code, _ := batch[1].Code(); code != 61 {
		t.Errorf("batch[1] code = %d, want 61", code)
	}
}

func TestParseBatch_NonArrayElementKeepsNeighbours(t *testing.T) {
	batch, err := events.ParseBatch([]byte(`[[5, 10, 0, 99, 1000, "hi", 7], {"odd": 1}, "x", [61, 42, 1]]`))
	if err != nil {
		t.Fatalf("ParseBatch() error: %v", err)
	}
	if len(batch) != 4 {
		t.Fatalf("got %d records, want 4", len(batch))
	}
	if _, ok := events.Classify(batch[0]).(events.MessageEvent); !ok {
		t.Errorf("batch[0]: got %T, want MessageEvent", events.Classify(batch[0]))
	}
	for _, i := range []int{1, 2} {
		if ev := events.Classify(batch[i]); !isMalformed(ev) {
			t.Errorf("batch[%d]: got %T, want Malformed", i, ev)
		}
	}
	if _, ok := events.Classify(batch[3]).(events.TypingEvent); !ok {
		t.Errorf("batch[3]: got %T, want TypingEvent", events.Classify(batch[3]))
	}
}

func isMalformed(ev events.Event) bool {
	_, ok := ev.(events.Malformed)
	return ok
}

func TestParseRecord_NotArray(t *testing.T) {
	if _, err := events.ParseRecord([]byte(`{"a":1}`)); err == nil {
		t.Error("expected error for object input")
	}
}
