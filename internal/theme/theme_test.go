package theme

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetTheme(t *testing.T) {
	assert.Equal(t, Nord(), GetTheme(NordName))
	assert.Equal(t, CleanLight(), GetTheme(CleanLightName))
	assert.Equal(t, Dracula(), GetTheme("unknown"))
}

func TestThemesDefineChangeColors(t *testing.T) {
	for _, name := range AvailableThemes() {
		th := GetTheme(name)
		for _, c := range []string{
			string(th.Added), string(th.Modified), string(th.Deleted),
			string(th.Renamed), string(th.Conflict), string(th.Untracked),
		} {
			assert.NotEmpty(t, c, name)
		}
	}
	assert.True(t, IsLight(CleanLightName))
	assert.False(t, IsLight(DraculaName))
}
