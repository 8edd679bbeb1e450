package renewable

import (
	"fmt"

	"github.com/GoSim-25-26J-441/adequacy-core/pkg/models"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/utils"
)

// SolarState is the day currently being played back. Block[h][z] is the
// zonal output at hour h of that day.
type SolarState struct {
	Cluster int
	Day     int
	Block   [][]float64
}

// Solar samples one representative day per simulated day.
type Solar struct {
	zones    int
	siteZ    []int
	siteMW   []float64
	clusters []models.SolarCluster
	monthCum [utils.MonthsInYear][]float64
}

// NewSolar normalizes each month's cluster probabilities and prepares the
// cumulative selection table.
func NewSolar(data *models.SolarData, zones int) (*Solar, error) {
	s := &Solar{zones: zones}
	if data == nil || len(data.Sites) == 0 {
		return s, nil
	}
	if len(data.Clusters) == 0 {
		return nil, fmt.Errorf("solar: no clusters")
	}
	for _, site := range data.Sites {
		s.siteZ = append(s.siteZ, site.Zone-1)
		s.siteMW = append(s.siteMW, site.MaxMW)
	}
	s.clusters = data.Clusters

	for m := 0; m < utils.MonthsInYear; m++ {
		total := 0.0
		for c, cl := range data.Clusters {
			if len(cl.MonthProbability) != utils.MonthsInYear {
				return nil, fmt.Errorf("solar cluster %d (%s): month_probability needs 12 entries", c, cl.Name)
			}
			total += cl.MonthProbability[m]
		}
		if total <= 0 {
			return nil, fmt.Errorf("solar: month %d has zero cluster probability", m+1)
		}
		cum := make([]float64, len(data.Clusters))
		acc := 0.0
		for c, cl := range data.Clusters {
			acc += cl.MonthProbability[m] / total
			cum[c] = acc
		}
		s.monthCum[m] = cum
	}
	return s, nil
}

// Sites returns the number of solar sites
func (s *Solar) Sites() int { return len(s.siteZ) }

// Step returns the zonal output for simulation hour n. A new day is drawn at
// every midnight, or whenever no day is loaded yet.
func (s *Solar) Step(n int, st SolarState, rng *utils.RandSource) ([]float64, SolarState) {
	if len(s.siteZ) == 0 {
		return make([]float64, s.zones), st
	}
	if n%utils.HoursPerDay == 0 || st.Block == nil {
		st = s.drawDay(utils.MonthOfHour(n), rng)
	}
	return append([]float64(nil), st.Block[utils.HourOfDay(n)]...), st
}

func (s *Solar) drawDay(month int, rng *utils.RandSource) SolarState {
	cum := s.monthCum[month]
	u := rng.Float64()
	cluster := len(cum) - 1
	for c, p := range cum {
		if u < p {
			cluster = c
			break
		}
	}

	days := s.clusters[cluster].Days
	day := rng.Intn(len(days))
	profile := days[day]

	block := make([][]float64, utils.HoursPerDay)
	for h := range block {
		block[h] = make([]float64, s.zones)
		for site, z := range s.siteZ {
			block[h][z] += profile[h][site] * s.siteMW[site]
		}
	}
	return SolarState{Cluster: cluster, Day: day, Block: block}
}
