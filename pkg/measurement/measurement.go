// Package measurement loads impedance sweeps from text files.
package measurement

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/kacperjurak/sipfit"
)

// ParseFile reads a sweep from file. See Parse for the format.
func ParseFile(file string) (sipfit.Spectrum, error) {
	f, err := os.Open(file)
	if err != nil {
		return sipfit.Spectrum{}, err
	}
	defer f.Close()
	s, err := Parse(f)
	if err != nil {
		return sipfit.Spectrum{}, fmt.Errorf("%s: %w", file, err)
	}
	return s, nil
}

// Parse reads "freq real imag" rows separated by whitespace, commas or
// semicolons. Blank lines, lines starting with '#' and a non-numeric header
// row are skipped. The result is sorted by ascending frequency.
func Parse(r io.Reader) (sipfit.Spectrum, error) {
	var s sipfit.Spectrum
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.FieldsFunc(line, func(c rune) bool {
			return c == ',' || c == ';' || c == ' ' || c == '\t'
		})
		if len(fields) < 3 {
			return sipfit.Spectrum{}, fmt.Errorf("line %d: expected 3 columns, got %d", lineNo, len(fields))
		}

		var vals [3]float64
		var err error
		for i := 0; i < 3; i++ {
			if vals[i], err = strconv.ParseFloat(fields[i], 64); err != nil {
				break
			}
		}
		if err != nil {
			if len(s.Freqs) == 0 {
				// header
				continue
			}
			return sipfit.Spectrum{}, fmt.Errorf("line %d: %w", lineNo, err)
		}
		s.Freqs = append(s.Freqs, vals[0])
		s.Real = append(s.Real, vals[1])
		s.Imag = append(s.Imag, vals[2])
	}
	if err := scanner.Err(); err != nil {
		return sipfit.Spectrum{}, err
	}
	if err := s.Validate(); err != nil {
		return sipfit.Spectrum{}, err
	}
	sort.Sort(byFreq(s))
	return s, nil
}

type byFreq sipfit.Spectrum

func (b byFreq) Len() int           { return len(b.Freqs) }
func (b byFreq) Less(i, j int) bool { return b.Freqs[i] < b.Freqs[j] }
func (b byFreq) Swap(i, j int) {
	b.Freqs[i], b.Freqs[j] = b.Freqs[j], b.Freqs[i]
	b.Real[i], b.Real[j] = b.Real[j], b.Real[i]
	b.Imag[i], b.Imag[j] = b.Imag[j], b.Imag[i]
}

// Cut drops low points from the start and high points from the end of s.
func Cut(s sipfit.Spectrum, low, high uint) (sipfit.Spectrum, error) {
	n := s.Len()
	if int(low+high) >= n {
		return sipfit.Spectrum{}, fmt.Errorf("%w: cutting %d+%d points leaves nothing of %d", sipfit.ErrConfig, low, high, n)
	}
	end := n - int(high)
	return sipfit.Spectrum{
		Freqs: append([]float64(nil), s.Freqs[low:end]...),
		Real:  append([]float64(nil), s.Real[low:end]...),
		Imag:  append([]float64(nil), s.Imag[low:end]...),
	}, nil
}
