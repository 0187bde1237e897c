package app

// ScoreTrigger rates a trigger's window statistics on five components and
// returns the total in [0, 15] plus the per-component breakdown. Pure
// function of the trigger; the breakdown is persisted on the evaluation row.
//
// Components:
//
//	volume_ratio          1 if >=5, 3 if >=10, 5 if >=20
//	call_pct              2 if >0.70, 3 if >0.85
//	sweep_pct             2 if >0.30, 3 if >0.50
//	strike_concentration  with >=50 contracts: 3 if <=3 strikes, 1 if <=5
//	notional              1 if >=$50K, 3 if >=$200K
func ScoreTrigger(t *Trigger) (int, map[string]int) {
	components := map[string]int{
		"volume_ratio":         scoreVolumeRatio(t.VolumeRatio),
		"call_pct":             scoreCallPct(t.Stats.CallPct),
		"sweep_pct":            scoreSweepPct(t.Stats.SweepPct),
		"strike_concentration": scoreStrikeConcentration(t.Stats.UniqueStrikes, t.Stats.ContractsTotal),
		"notional":             scoreNotional(t.Stats.NotionalTotal),
	}

	total := 0
	for _, v := range components {
		total += v
	}
	return total, components
}

func scoreVolumeRatio(ratio float64) int {
	switch {
	case ratio >= 20:
		return 5
	case ratio >= 10:
		return 3
	case ratio >= 5:
		return 1
	}
	return 0
}

func scoreCallPct(callPct float64) int {
	switch {
	case callPct > 0.85:
		return 3
	case callPct > 0.70:
		return 2
	}
	return 0
}

func scoreSweepPct(sweepPct float64) int {
	switch {
	case sweepPct > 0.50:
		return 3
	case sweepPct > 0.30:
		return 2
	}
	return 0
}

func scoreStrikeConcentration(strikes, contracts int) int {
	if contracts < 50 {
		return 0
	}
	switch {
	case strikes <= 3:
		return 3
	case strikes <= 5:
		return 1
	}
	return 0
}

func scoreNotional(notional float64) int {
	switch {
	case notional >= 200_000:
		return 3
	case notional >= 50_000:
		return 1
	}
	return 0
}
