package forecast

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// fitOLS solves ordinary least squares with an intercept via QR and returns
// the coefficient vector (intercept first). Collinear feature columns surface
// as a mat.Condition error that still carries a usable solution, so only
// other failures abort the fit.
func fitOLS(rows [][]float64, targets []float64) ([]float64, error) {
	if len(rows) == 0 {
		return nil, errors.New("no training rows")
	}

	m := len(rows)
	n := featureCount + 1
	a := mat.NewDense(m, n, nil)
	for i, row := range rows {
		a.Set(i, 0, 1)
		for j, v := range row {
			a.Set(i, j+1, v)
		}
	}
	b := mat.NewVecDense(m, targets)

	var beta mat.VecDense
	if err := beta.SolveVec(a, b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, err
		}
	}

	coefs := make([]float64, n)
	for i := range coefs {
		coefs[i] = beta.AtVec(i)
	}
	return coefs, nil
}

// predict applies fitted coefficients to one feature row.
func predict(coefs, row []float64) float64 {
	y := coefs[0]
	for j, v := range row {
		y += coefs[j+1] * v
	}
	return y
}
