package artifact

import (
	"testing"
	"time"

	"rezerva/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReservation(category string) *models.Reservation {
	return &models.Reservation{
		BookingID:          42,
		ReservationNumber:  "PX041346",
		ConfirmationNumber: "CNF-7781",
		Travellers: []models.Traveller{
			{FirstName: "Ahmet", LastName: "Yilmaz", Email: "ahmet@x.com", Phone: "+905551234567", IsLeader: true},
			{FirstName: "Elif", LastName: "Yilmaz"},
		},
		Services: []models.ServiceDetail{
			{Category: category, Name: "Grand Hotel", StartDate: time.Date(2026, 9, 10, 14, 0, 0, 0, time.UTC)},
		},
		TotalAmount: 1250.50,
		Currency:    "EUR",
	}
}

func TestGenerate_ProducesPDF(t *testing.T) {
	gen := NewGenerator("Rezerva Travel")

	art, err := gen.Generate(testReservation(models.CategoryLodging))
	require.NoError(t, err)
	require.NotNil(t, art)

	assert.True(t, len(art.Buffer) > 0)
	assert.Equal(t, "%PDF", string(art.Buffer[:4]))
	assert.Contains(t, art.Path, "PX041346")
	assert.Contains(t, art.Path, ".pdf")
}

func TestGenerate_TemplateSelection(t *testing.T) {
	gen := NewGenerator("")

	for _, category := range []string{models.CategoryLodging, models.CategoryTransport, "cruise", ""} {
		art, err := gen.Generate(testReservation(category))
		require.NoError(t, err, "category %q must render via fallback when unknown", category)
		assert.Equal(t, "%PDF", string(art.Buffer[:4]))
	}
}

func TestGenerate_NoServices(t *testing.T) {
	gen := NewGenerator("Rezerva Travel")
	res := testReservation(models.CategoryLodging)
	res.Services = nil

	art, err := gen.Generate(res)
	require.NoError(t, err)
	assert.NotEmpty(t, art.Buffer)
}

func TestGenerate_MissingRequiredFields(t *testing.T) {
	gen := NewGenerator("Rezerva Travel")

	var genErr *GenerationError

	_, err := gen.Generate(nil)
	require.ErrorAs(t, err, &genErr)

	res := testReservation(models.CategoryLodging)
	res.ReservationNumber = ""
	_, err = gen.Generate(res)
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "reservation_number", genErr.Field)

	res = testReservation(models.CategoryLodging)
	res.Travellers = nil
	_, err = gen.Generate(res)
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "travellers", genErr.Field)
}

func TestGenerate_PathUniqueAcrossRegenerations(t *testing.T) {
	gen := NewGenerator("Rezerva Travel")
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	i := 0
	gen.now = func() time.Time {
		i++
		return base.Add(time.Duration(i) * time.Second)
	}

	first, err := gen.Generate(testReservation(models.CategoryLodging))
	require.NoError(t, err)
	second, err := gen.Generate(testReservation(models.CategoryLodging))
	require.NoError(t, err)

	assert.NotEqual(t, first.Path, second.Path, "regeneration must never overwrite an earlier artifact")
}

func TestVoucherPath(t *testing.T) {
	at := time.Date(2026, 9, 1, 12, 30, 45, 0, time.UTC)
	assert.Equal(t, "PX041346_20260901T123045.pdf", VoucherPath("PX041346", at))
}
