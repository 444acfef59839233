package webhook

import (
	"log"
	"math"

	"github.com/kacperjurak/sipfit"
	"github.com/kacperjurak/sipfit/pkg/models"
)

// Calculator evaluates the individual circuit branches for webhook payloads
type Calculator struct{}

// NewCalculator creates a new impedance calculator
func NewCalculator() *Calculator {
	return &Calculator{}
}

// CalculateElementImpedances evaluates every branch of the circuit named by
// topology at params
func (c *Calculator) CalculateElementImpedances(topology string, negativeLead bool, params map[string]float64, freqs []float64) ([]models.ElementImpedance, error) {
	topo, err := sipfit.ParseTopology(topology)
	if err != nil {
		return nil, err
	}
	p, err := sipfit.ParamsFromMap(params)
	if err != nil {
		return nil, err
	}
	m := sipfit.NewModel(sipfit.Options{Topology: topo, NegativeLeadResistance: negativeLead})
	elements, err := sipfit.ElementImpedances(m, p, freqs)
	if err != nil {
		return nil, err
	}

	result := make([]models.ElementImpedance, len(elements))
	for i, el := range elements {
		points := make([]models.ImpedancePoint, len(el.Impedances))
		for j, z := range el.Impedances {
			points[j] = c.sanitizeImpedance(z, el.Name, freqs[j])
		}
		result[i] = models.ElementImpedance{Name: el.Name, Impedances: points}
	}
	return result, nil
}

// sanitizeImpedance handles NaN, Inf values for JSON compatibility
func (c *Calculator) sanitizeImpedance(z complex128, element string, freq float64) models.ImpedancePoint {
	re, im := real(z), imag(z)
	if math.IsNaN(re) || math.IsInf(re, 0) {
		log.Printf("Warning: Invalid real impedance (%v) for element %s at freq %.2f Hz, setting to 0.0", re, element, freq)
		re = 0
	}
	if math.IsNaN(im) || math.IsInf(im, 0) {
		log.Printf("Warning: Invalid imaginary impedance (%v) for element %s at freq %.2f Hz, setting to 0.0", im, element, freq)
		im = 0
	}
	return models.ImpedancePoint{Real: re, Imag: im}
}
