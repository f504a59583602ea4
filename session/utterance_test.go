package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"go.aimuz.me/basar/internal/types"
)

func objects(labels ...string) []types.Object {
	out := make([]types.Object, len(labels))
	for i, l := range labels {
		out[i] = types.Object{Label: l}
	}
	return out
}

func TestDeriveUtterance(t *testing.T) {
	tests := []struct {
		name     string
		res      types.Result
		locale   string
		wantText string
		wantKey  string
	}{
		{
			name:     "arabic list",
			res:      types.Result{Kind: types.ResultDetection, Objects: objects("كرسي", "باب")},
			locale:   "ar-SA",
			wantText: "كرسي ، باب",
			wantKey:  "objects\x00باب\x1fكرسي",
		},
		{
			name:     "english list",
			res:      types.Result{Kind: types.ResultDetection, Objects: objects("door", "chair")},
			locale:   "en-US",
			wantText: "door, chair",
			wantKey:  "objects\x00chair\x1fdoor",
		},
		{
			name: "summary wins over the list",
			res: types.Result{Kind: types.ResultDetection, Summary: "a  chair\nahead",
				Objects: objects("chair")},
			locale:   "en",
			wantText: "a chair ahead",
			wantKey:  "objects\x00chair",
		},
		{
			name: "summary without objects says nothing",
			res:  types.Result{Kind: types.ResultDetection, Summary: "clear path"},
		},
		{
			name: "distance is part of the caption",
			res: types.Result{Kind: types.ResultDetection,
				Objects: []types.Object{{Label: "car", Distance: "3m"}}},
			wantText: "car 3m",
			wantKey:  "objects\x00car 3m",
		},
		{
			name: "message alone says nothing",
			res:  types.Result{Kind: types.ResultDetection, Message: "no objects"},
		},
		{
			name:     "text is normalized",
			res:      types.Result{Kind: types.ResultText, Text: "  NO\n\tPARKING "},
			wantText: "NO PARKING",
			wantKey:  "NO PARKING",
		},
		{
			name: "blank text",
			res:  types.Result{Kind: types.ResultText, Text: " \n "},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := deriveUtterance(tt.res, tt.locale)
			assert.Equal(t, tt.wantText, u.text)
			assert.Equal(t, tt.wantKey, u.key)
		})
	}
}

func TestDeriveUtterance_OrderInsensitiveKey(t *testing.T) {
	a := deriveUtterance(types.Result{Kind: types.ResultDetection, Objects: objects("chair", "door")}, "en")
	b := deriveUtterance(types.Result{Kind: types.ResultDetection, Objects: objects("door", "chair")}, "en")
	assert.Equal(t, a.key, b.key)
	assert.NotEqual(t, a.text, b.text)
}

func TestStatusText(t *testing.T) {
	const none = "لا توجد أشياء مكتشفة"
	tests := []struct {
		name string
		res  types.Result
		want string
	}{
		{"captions", types.Result{Kind: types.ResultDetection, Objects: []types.Object{{Label: "chair", Distance: "near"}, {Label: "door"}}}, "chair near, door"},
		{"service message", types.Result{Kind: types.ResultDetection, Message: "no objects detected"}, "no objects detected"},
		{"summary", types.Result{Kind: types.ResultDetection, Summary: "clear path"}, "clear path"},
		{"nothing", types.Result{Kind: types.ResultDetection}, none},
		{"text", types.Result{Kind: types.ResultText, Text: " EXIT "}, "EXIT"},
		{"text message", types.Result{Kind: types.ResultText, Message: "no text"}, "no text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusText(tt.res, none))
		})
	}
}

func TestIsArabic(t *testing.T) {
	for locale, want := range map[string]bool{
		"ar": true, "ar-SA": true, "AR_eg": true,
		"en-US": false, "arn": false, "": false,
	} {
		assert.Equal(t, want, isArabic(locale), locale)
	}
}
