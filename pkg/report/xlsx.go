package report

import (
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/kacperjurak/sipfit"
)

// Row is one fitted or calculated sample.
type Row struct {
	Name   string
	Fit    *sipfit.FitResult
	Result sipfit.CalculationResult
}

// WriteXLSX saves rows to filename with one sheet each for parameters,
// secondary variables, chargeability samples and model curves.
func WriteXLSX(filename string, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	params := "Parameters"
	if err := f.SetSheetName("Sheet1", params); err != nil {
		return err
	}
	header := append([]string{"Name"}, sipfit.ParamNames...)
	header = append(header, "Status", "Min", "ChiSq")
	writeHeader(f, params, header)
	for i, r := range rows {
		row := []interface{}{r.Name}
		for _, v := range r.Result.Params.Values() {
			row = append(row, v)
		}
		if r.Fit != nil {
			row = append(row, r.Fit.Status, r.Fit.Min, r.Fit.ChiSq)
		}
		writeRow(f, params, i+2, row)
	}

	if _, err := f.NewSheet("Variables"); err != nil {
		return err
	}
	var names []string
	if len(rows) > 0 {
		for k := range rows[0].Result.Variables() {
			names = append(names, k)
		}
		sort.Strings(names)
	}
	writeHeader(f, "Variables", append([]string{"Name"}, names...))
	for i, r := range rows {
		vars := r.Result.Variables()
		row := []interface{}{r.Name}
		for _, k := range names {
			row = append(row, cellFloat(vars[k]))
		}
		writeRow(f, "Variables", i+2, row)
	}

	if _, err := f.NewSheet("Chargeability"); err != nil {
		return err
	}
	writeHeader(f, "Chargeability", []string{"Name", "Offset [s]", "Time [s]", "Volt", "Chargeability [mV/V]"})
	line := 2
	for _, r := range rows {
		for _, c := range r.Result.TimeDomain.Chargeability {
			writeRow(f, "Chargeability", line, []interface{}{r.Name, c.Offset, c.Time, cellFloat(c.Volt), cellFloat(c.Chargeability)})
			line++
		}
	}

	if _, err := f.NewSheet("Curve"); err != nil {
		return err
	}
	writeHeader(f, "Curve", []string{"Name", "Freq [Hz]", "Re(Z)", "Im(Z)", "Re(Zrock)", "Im(Zrock)"})
	line = 2
	for _, r := range rows {
		res := r.Result
		for i, fr := range res.Freqs {
			writeRow(f, "Curve", line, []interface{}{r.Name, fr, res.Real[i], res.Imag[i], res.RockReal[i], res.RockImag[i]})
			line++
		}
	}

	return f.SaveAs(filename)
}

func writeHeader(f *excelize.File, sheet string, header []string) {
	for col, h := range header {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(sheet, cell, h)
	}
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) {
	for col, v := range values {
		cell, _ := excelize.CoordinatesToCellName(col+1, row)
		f.SetCellValue(sheet, cell, v)
	}
}

// cellFloat leaves NaN and Inf cells empty; xlsx has no encoding for them.
func cellFloat(v float64) interface{} {
	if v != v || v > 1.7976931348623157e308 || v < -1.7976931348623157e308 {
		return ""
	}
	return v
}
