package telegram

import (
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestMediaParts(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		msg      *tele.Message
		wantName string
		wantType string
	}{
		{
			name: "document keeps original name and mime",
			msg: &tele.Message{Document: &tele.Document{
				File:     tele.File{UniqueID: "u1"},
				FileName: "report.pdf",
				MIME:     "application/pdf",
			}},
			wantName: "report.pdf",
			wantType: "application/pdf",
		},
		{
			name: "document without name gets synthetic one",
			msg: &tele.Message{Document: &tele.Document{
				File: tele.File{UniqueID: "u2"},
			}},
			wantName: "document_u2",
			wantType: "",
		},
		{
			name:     "photo is always jpeg",
			msg:      &tele.Message{Photo: &tele.Photo{File: tele.File{UniqueID: "u3"}}},
			wantName: "photo_u3.jpg",
			wantType: "image/jpeg",
		},
		{
			name:     "video falls back to mp4",
			msg:      &tele.Message{Video: &tele.Video{File: tele.File{UniqueID: "u4"}}},
			wantName: "video_u4.mp4",
			wantType: "video/mp4",
		},
		{
			name:     "audio falls back to mp3",
			msg:      &tele.Message{Audio: &tele.Audio{File: tele.File{UniqueID: "u5"}}},
			wantName: "audio_u5.mp3",
			wantType: "audio/mpeg",
		},
		{
			name:     "voice note is ogg",
			msg:      &tele.Message{Voice: &tele.Voice{File: tele.File{UniqueID: "u6"}}},
			wantName: "voice_u6.ogg",
			wantType: "audio/ogg",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file, name, ct := mediaParts(tt.msg)
			if file == nil {
				t.Fatalf("mediaParts returned nil file")
			}
			if name != tt.wantName {
				t.Fatalf("name = %q, want %q", name, tt.wantName)
			}
			if ct != tt.wantType {
				t.Fatalf("content type = %q, want %q", ct, tt.wantType)
			}
		})
	}
}

func TestMediaPartsNoMedia(t *testing.T) {
	t.Parallel()
	file, _, _ := mediaParts(&tele.Message{Text: "hello"})
	if file != nil {
		t.Fatalf("want nil file for text message")
	}
}
