package mqtt

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrimTopic(t *testing.T) {
	for _, tt := range []struct {
		topic string
		want  string
	}{
		{topic: "", want: ""},
		{topic: "/", want: ""},
		{topic: "/a", want: "a"},
		{topic: "a/", want: "a"},
		{topic: "/a/", want: "a"},
		{topic: "/a/b", want: "a/b"},
		{topic: "a/b/", want: "a/b"},
		{topic: "a/b", want: "a/b"},
		{topic: "/a/b/", want: "a/b"},
	} {
		t.Run(tt.topic, func(t *testing.T) {
			require.Equal(t, tt.want, TrimTopic(tt.topic))
		})
	}
}

func TestJoinTopic(t *testing.T) {
	for i, tt := range []struct {
		parts []string
		want  string
	}{
		// JoinTopic should trim empty parts
		{parts: []string{""}, want: ""},
		{parts: []string{"", ""}, want: ""},
		{parts: []string{"", "a"}, want: "a"},
		{parts: []string{"", "a", "", "b"}, want: "a/b"},

		// JoinTopic should trim each individual part
		{parts: []string{"a", "/", "b"}, want: "a/b"},
		{parts: []string{"/a", "b"}, want: "a/b"},
		{parts: []string{"a/", "b"}, want: "a/b"},
		{parts: []string{"/a/", "b"}, want: "a/b"},
		{parts: []string{"/a/b", "c"}, want: "a/b/c"},
		{parts: []string{"a/b/", "c"}, want: "a/b/c"},
		{parts: []string{"a/b", "c"}, want: "a/b/c"},
		{parts: []string{"/a/b/", "c"}, want: "a/b/c"},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			require.Equal(t, tt.want, JoinTopic(tt.parts...))
		})
	}
}

func TestMatchTopic(t *testing.T) {
	for _, tt := range []struct {
		filter string
		topic  string
		want   bool
	}{
		{filter: "dev_pub_AA", topic: "dev_pub_AA", want: true},
		{filter: "dev_pub_AA", topic: "dev_pub_BB", want: false},
		{filter: "+", topic: "dev_pub_AA", want: true},
		{filter: "+", topic: "techlife/AA", want: false},
		{filter: "techlife/+/set", topic: "techlife/AA/set", want: true},
		{filter: "techlife/+/set", topic: "techlife/AA/brightness/set", want: false},
		{filter: "techlife/#", topic: "techlife/AA/brightness/set", want: true},
		{filter: "techlife/#", topic: "techlife", want: false},
		{filter: "#", topic: "anything/at/all", want: true},
		{filter: "dev_pub_+", topic: "dev_pub_AA", want: false},
		{filter: "a/#/b", topic: "a/x/b", want: false},
	} {
		t.Run(tt.filter+" "+tt.topic, func(t *testing.T) {
			require.Equal(t, tt.want, MatchTopic(tt.filter, tt.topic))
		})
	}
}
