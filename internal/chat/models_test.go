// internal/chat/models_test.go

package chat

import (
    "strings"
    "testing"

    "github.com/stretchr/testify/assert"

    "github.com/taskroom/taskroom-backend/internal/common/utils"
)

func strPtr(s string) *string { return &s }
func i64Ptr(v int64) *int64   { return &v }

func TestMessageValidateScope(t *testing.T) {
    tests := []struct {
        name    string
        msg     Message
        wantErr error
    }{
        {
            name: "private message is valid",
            msg:  Message{SenderID: 1, RecipientID: i64Ptr(2), Content: strPtr("hi")},
        },
        {
            name: "group message is valid",
            msg:  Message{SenderID: 1, GroupID: i64Ptr(7), Content: strPtr("hi")},
        },
        {
            name:    "neither recipient nor group",
            msg:     Message{SenderID: 1, Content: strPtr("hi")},
            wantErr: ErrInvalidScope,
        },
        {
            name:    "both recipient and group",
            msg:     Message{SenderID: 1, RecipientID: i64Ptr(2), GroupID: i64Ptr(7), Content: strPtr("hi")},
            wantErr: ErrInvalidScope,
        },
    }

    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            err := tt.msg.Validate()
            if tt.wantErr != nil {
                assert.ErrorIs(t, err, tt.wantErr)
            } else {
                assert.NoError(t, err)
            }
        })
    }
}

func TestMessageValidatePayload(t *testing.T) {
    empty := Message{SenderID: 1, RecipientID: i64Ptr(2)}
    assert.ErrorIs(t, empty.Validate(), ErrEmptyPayload)

    blank := Message{SenderID: 1, RecipientID: i64Ptr(2), Content: strPtr("")}
    assert.ErrorIs(t, blank.Validate(), ErrEmptyPayload)

    photoOnly := Message{SenderID: 1, RecipientID: i64Ptr(2), Photo: []byte{0xff}}
    assert.NoError(t, photoOnly.Validate())

    fileOnly := Message{SenderID: 1, RecipientID: i64Ptr(2), File: []byte{0x01}}
    assert.NoError(t, fileOnly.Validate())

    urlOnly := Message{SenderID: 1, RecipientID: i64Ptr(2), MediaURL: strPtr("https://cdn/x")}
    assert.NoError(t, urlOnly.Validate())
}

func TestDeriveKind(t *testing.T) {
    text := Message{Content: strPtr("hello")}
    assert.Equal(t, KindText, text.DeriveKind())

    photo := Message{Content: strPtr("caption"), Photo: []byte{0xff}}
    assert.Equal(t, KindPhoto, photo.DeriveKind())

    file := Message{File: []byte{0x01}, FileName: strPtr("doc.pdf")}
    assert.Equal(t, KindFile, file.DeriveKind())

    offloadedFile := Message{MediaURL: strPtr("https://cdn/x"), FileName: strPtr("doc.pdf")}
    assert.Equal(t, KindFile, offloadedFile.DeriveKind())

    offloadedPhoto := Message{MediaURL: strPtr("https://cdn/x")}
    assert.Equal(t, KindPhoto, offloadedPhoto.DeriveKind())
}

func TestAddReactionEmojiBound(t *testing.T) {
    // Validation must reject anything the reactions emoji column cannot
    // hold, so oversized input fails with 400 rather than a 500 from
    // the insert.
    assert.NoError(t, utils.ValidateStruct(&AddReactionRequest{Emoji: strings.Repeat("x", 20)}))
    assert.Error(t, utils.ValidateStruct(&AddReactionRequest{Emoji: strings.Repeat("x", 21)}))
    assert.Error(t, utils.ValidateStruct(&AddReactionRequest{Emoji: ""}))
}
