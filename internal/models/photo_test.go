package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhotoEventValid(t *testing.T) {
	for _, e := range []PhotoEvent{
		EventSuckingPest, EventChewingPest, EventDisease,
		EventNutrientDeficiency, EventPopulationCount, EventOther,
	} {
		assert.True(t, e.Valid(), string(e))
	}
	assert.False(t, PhotoEvent("weed").Valid())
	assert.False(t, PhotoEvent("").Valid())
}

func TestSeverityValid(t *testing.T) {
	assert.True(t, SeverityLow.Valid())
	assert.True(t, SeverityHigh.Valid())
	assert.False(t, Severity("critical").Valid())
}

func TestPhotoPayload(t *testing.T) {
	t.Run("location needs both coordinates", func(t *testing.T) {
		lat := -23.5
		p := &PhotoPayload{Latitude: &lat}
		assert.False(t, p.HasLocation())

		lng := -46.6
		p.Longitude = &lng
		assert.True(t, p.HasLocation())
	})

	t.Run("detects data URIs", func(t *testing.T) {
		assert.True(t, (&PhotoPayload{ImageRef: "data:image/jpeg;base64,AAAA"}).IsDataURI())
		assert.False(t, (&PhotoPayload{ImageRef: "2024/03/leaf.jpg"}).IsDataURI())
	})
}

func TestSanitizeFilename(t *testing.T) {
	t.Run("strips path components", func(t *testing.T) {
		name := SanitizeFilename("../../../etc/passwd.jpg")

		assert.NotContains(t, name, "..")
		assert.NotContains(t, name, "/")
		assert.Equal(t, "passwd.jpg", name)
	})

	t.Run("replaces reserved characters", func(t *testing.T) {
		assert.Equal(t, "a_b_c.jpg", SanitizeFilename("a:b*c.jpg"))
	})
}
