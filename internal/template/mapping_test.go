package template

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMappings(t *testing.T) {
	vars := []string{"1", "2", "Name", "NOME", "city"}
	got := DefaultMappings(vars)

	require.Len(t, got, len(vars))
	assert.Equal(t, ContactDisplayName(), got["1"])
	assert.Equal(t, FixedText(""), got["2"])
	assert.Equal(t, ContactDisplayName(), got["Name"])
	assert.Equal(t, ContactDisplayName(), got["NOME"])
	assert.Equal(t, FixedText(""), got["city"])
	assert.True(t, got.Complete(vars))
}

func TestMappingSetReconcile(t *testing.T) {
	set := MappingSet{
		"1":    SourceColumn("first_name"),
		"code": FixedText("XYZ"),
	}

	got := set.Reconcile([]string{"1", "name", "promo"})

	assert.Equal(t, SourceColumn("first_name"), got["1"])
	assert.Equal(t, ContactDisplayName(), got["name"])
	assert.Equal(t, FixedText(""), got["promo"])
	assert.NotContains(t, got, "code")
}

func TestMappingSetMissing(t *testing.T) {
	set := MappingSet{"1": FixedText("a")}
	assert.Equal(t, []string{"2", "3"}, set.Missing([]string{"1", "2", "3"}))
	assert.False(t, set.Complete([]string{"1", "2"}))
}

func TestMappingJSON(t *testing.T) {
	set := MappingSet{
		"1":    ContactDisplayName(),
		"city": SourceColumn("cidade"),
		"code": FixedText("PROMO10"),
	}

	data, err := json.Marshal(set)
	require.NoError(t, err)

	var decoded MappingSet
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, set, decoded)
}

func TestMappingUnmarshalRejectsUnknown(t *testing.T) {
	var m Mapping
	err := json.Unmarshal([]byte(`{"type":"formula","value":"x"}`), &m)
	assert.Error(t, err)
}

func TestParseMapping(t *testing.T) {
	tests := []struct {
		in      string
		want    Mapping
		wantErr bool
	}{
		{in: "text:hello", want: FixedText("hello")},
		{in: "text:", want: FixedText("")},
		{in: "column:email", want: SourceColumn("email")},
		{in: "name", want: ContactDisplayName()},
		{in: "column:", wantErr: true},
		{in: "bogus:1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMapping(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestZeroMappingIsEmptyText(t *testing.T) {
	var m Mapping
	assert.Equal(t, KindFixedText, m.Kind())
	assert.Equal(t, "", m.Text())
	assert.Equal(t, "", m.Column())
}
