package indicator

import (
	"math"

	"github.com/tunogya/coil/pkg/model"
	"github.com/tunogya/coil/pkg/stats"
)

// adx returns the average directional index of the latest bar.
//
// +DM/-DM and TR are averaged with simple rolling means over the period, DX is
// computed per bar from the two directional indicators, and ADX is the rolling
// mean of the last period DX values. When any DX in that window is undefined
// (zero ATR or zero DI sum) the neutral default is returned instead.
func (c *Calculator) adx(history []model.Bar) float64 {
	period := c.cfg.ADXPeriod
	n := len(history)
	// the first DX needs a full TR window, ADX needs period DX values
	if n < 2*period-1 {
		return c.cfg.NeutralADX
	}

	tr := trueRanges(history)
	posDM, negDM := directionalMovement(history)

	dx := make([]float64, 0, period)
	for i := n - period; i < n; i++ {
		atr := rollingMean(tr, i, period)
		if !stats.Defined(atr) || atr == 0 {
			return c.cfg.NeutralADX
		}
		posDI := 100 * rollingMean(posDM, i, period) / atr
		negDI := 100 * rollingMean(negDM, i, period) / atr
		sum := posDI + negDI
		if sum == 0 {
			return c.cfg.NeutralADX
		}
		dx = append(dx, 100*math.Abs(posDI-negDI)/sum)
	}

	adx := stats.Mean(dx)
	if !stats.Defined(adx) {
		return c.cfg.NeutralADX
	}
	return adx
}

// directionalMovement returns +DM and -DM per bar; the first bar has neither
func directionalMovement(history []model.Bar) (pos, neg []float64) {
	pos = make([]float64, len(history))
	neg = make([]float64, len(history))

	for i := 1; i < len(history); i++ {
		up := history[i].High - history[i-1].High
		down := history[i-1].Low - history[i].Low

		if up > down && up > 0 {
			pos[i] = up
		}
		if down > up && down > 0 {
			neg[i] = down
		}
	}
	return pos, neg
}
