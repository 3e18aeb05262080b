package proto

import "testing"

func TestParseVariants(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		check   func(t *testing.T, v any)
		wantErr bool
	}{
		{
			name:    "join with hwid",
			payload: `{"type":"join","channelId":"g1","hwid":"abc"}`,
			check: func(t *testing.T, v any) {
				j, ok := v.(*Join)
				if !ok || j.ChannelID != "g1" || j.HWID != "abc" {
					t.Fatalf("unexpected join: %#v", v)
				}
			},
		},
		{
			name:    "join without hwid",
			payload: `{"type":"join","channelId":"global"}`,
			check: func(t *testing.T, v any) {
				j, ok := v.(*Join)
				if !ok || j.ChannelID != "global" || j.HWID != "" {
					t.Fatalf("unexpected join: %#v", v)
				}
			},
		},
		{
			name:    "chat message",
			payload: `{"type":"message","text":"hello"}`,
			check: func(t *testing.T, v any) {
				c, ok := v.(*Chat)
				if !ok || c.Text != "hello" {
					t.Fatalf("unexpected chat: %#v", v)
				}
			},
		},
		{
			name:    "whisper",
			payload: `{"type":"whisper","target":"Guest 51234","text":"psst"}`,
			check: func(t *testing.T, v any) {
				w, ok := v.(*Whisper)
				if !ok || w.Target != "Guest 51234" || w.Text != "psst" {
					t.Fatalf("unexpected whisper: %#v", v)
				}
			},
		},
		{name: "join missing channel", payload: `{"type":"join"}`, wantErr: true},
		{name: "message missing text", payload: `{"type":"message","text":"  "}`, wantErr: true},
		{name: "whisper missing target", payload: `{"type":"whisper","text":"psst"}`, wantErr: true},
		{name: "unknown type", payload: `{"type":"emote","text":"wave"}`, wantErr: true},
		{name: "not json", payload: `hello`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Parse([]byte(tt.payload))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %#v", v)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			tt.check(t, v)
		})
	}
}
