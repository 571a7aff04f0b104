package strip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
	for _, tt := range []struct {
		topic  string
		want   ID
		wantOK bool
	}{
		{topic: "dev_pub_AA", want: "AA", wantOK: true},
		{topic: "dev_pub_a1b2c3", want: "a1b2c3", wantOK: true},
		{topic: "some_other_thing", want: "thing", wantOK: true},
		{topic: "dev_pub_", wantOK: false},
		{topic: "devpub", wantOK: false},
		{topic: "", wantOK: false},
	} {
		t.Run(tt.topic, func(t *testing.T) {
			got, ok := ParseID(tt.topic)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestIDTopics(t *testing.T) {
	id := ID("AA")

	assert.Equal(t, "dev_pub_AA", id.StateTopic())
	assert.Equal(t, "dev_sub_AA", id.CommandTopic())
}

func TestSlugify(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want string
	}{
		{in: "techlife_AA", want: "techlife_aa"},
		{in: "TechLife Strip 01:02", want: "techlife_strip_01_02"},
		{in: "--a--b--", want: "a_b"},
		{in: "already_ok", want: "already_ok"},
		{in: "", want: ""},
	} {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}

func TestIDUniqueIDAndInfo(t *testing.T) {
	assert.Equal(t, "techlife_aa", ID("AA").UniqueID())
	assert.NotEqual(t, ID("AA").UniqueID(), ID("BB").UniqueID())

	assert.Equal(t, Info{
		Name:         "TechLife Strip AA",
		Manufacturer: "TechLife",
		Model:        "Pro LED Strip",
	}, ID("AA").Info())
}
