// Package demo generates a synthetic commercial licensing dataset shaped like
// the spreadsheet the importer is normally fed.
package demo

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/sqlsight/sqlsight/internal/importer"
)

// Columns are the raw spreadsheet headers, before importer.CleanColumnNames.
var Columns = []string{
	"ID",
	"Region_Nmae",
	"Amana_Name",
	"Baladia_Name",
	"City_Name",
	"ISIC_Desc",
	"Lic_Status",
	"Shop_Area",
	"Issue_Date",
	"Expiration_Date",
	"G_Issue_Date",
	"G_Expiration_Date",
}

type place struct {
	region  string
	amana   string
	baladia string
	city    string
}

var places = []place{
	{"Riyadh", "Riyadh Amana", "Olaya", "Riyadh"},
	{"Riyadh", "Riyadh Amana", "Al Malaz", "Riyadh"},
	{"Riyadh", "Al Kharj Amana", "Al Kharj", "Al Kharj"},
	{"Makkah", "Jeddah Amana", "Al Balad", "Jeddah"},
	{"Makkah", "Makkah Amana", "Al Aziziyah", "Makkah"},
	{"Makkah", "Taif Amana", "Al Hawiyah", "Taif"},
	{"Eastern Province", "Eastern Province Amana", "Dammam", "Dammam"},
	{"Eastern Province", "Al Ahsa Amana", "Al Hofuf", "Al Hofuf"},
	{"Asir", "Asir Amana", "Abha", "Abha"},
	{"Qassim", "Qassim Amana", "Buraydah", "Buraydah"},
}

var activities = []string{
	"Retail sale of food in specialized stores",
	"Restaurants and mobile food service",
	"Retail sale of clothing",
	"Barber shops and beauty salons",
	"Retail sale of pharmaceutical goods",
	"Maintenance and repair of motor vehicles",
	"Retail sale of mobile phones",
	"Cafes and coffee shops",
}

type Generator struct {
	rnd *rand.Rand
	seq int64
	now func() time.Time
}

func NewGenerator(seed int64) *Generator {
	return &Generator{
		rnd: rand.New(rand.NewSource(seed)),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Frame returns n licences. About one row in fifty has no shop area and one
// in a hundred repeats the previous row, so cleaning has work to do.
func (g *Generator) Frame(n int) importer.Frame {
	rows := make([][]string, 0, n)
	for len(rows) < n {
		if len(rows) > 0 && g.rnd.Intn(100) == 0 {
			rows = append(rows, append([]string(nil), rows[len(rows)-1]...))
			continue
		}
		rows = append(rows, g.nextRow())
	}
	return importer.Frame{Columns: append([]string(nil), Columns...), Rows: rows}
}

func (g *Generator) nextRow() []string {
	g.seq++
	now := g.now()
	p := places[g.rnd.Intn(len(places))]
	issued := now.AddDate(0, 0, -g.rnd.Intn(6*365)).Truncate(24 * time.Hour)
	expires := issued.AddDate(1+g.rnd.Intn(5), 0, 0)

	status := "Active"
	if expires.Before(now) {
		status = "Expired"
	}
	area := ""
	if g.rnd.Intn(50) != 0 {
		area = strconv.FormatFloat(round2(12+g.rnd.Float64()*488), 'f', 2, 64)
	}

	return []string{
		strconv.FormatInt(100000+g.seq, 10),
		p.region,
		p.amana,
		p.baladia,
		p.city,
		activities[g.rnd.Intn(len(activities))],
		status,
		area,
		hijri(issued),
		hijri(expires),
		issued.Format("2006-01-02"),
		expires.Format("2006-01-02"),
	}
}

// hijri approximates the Hijri calendar date the source system stores next
// to the Gregorian one. It is display data only.
func hijri(t time.Time) string {
	days := t.Sub(time.Date(622, 7, 16, 0, 0, 0, 0, time.UTC)).Hours() / 24
	lunarYear := 354.36708
	year := int(days/lunarYear) + 1
	dayOfYear := int(math.Mod(days, lunarYear))
	month := min(dayOfYear/30+1, 12)
	// Capped at 28 so the value also parses as a calendar date.
	day := dayOfYear%30%28 + 1
	return fmt.Sprintf("%04d/%02d/%02d", year, month, day)
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
