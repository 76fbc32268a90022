package indicators

// TenkanCrossUp reports a Tenkan-above-Kijun transition between prev and cur.
func TenkanCrossUp(prev, cur Snapshot) bool {
	if prev.Ichimoku == nil || cur.Ichimoku == nil {
		return false
	}
	return prev.Ichimoku.Tenkan <= prev.Ichimoku.Kijun && cur.Ichimoku.Tenkan > cur.Ichimoku.Kijun
}

// TenkanCrossDown reports a Tenkan-below-Kijun transition between prev and cur.
func TenkanCrossDown(prev, cur Snapshot) bool {
	if prev.Ichimoku == nil || cur.Ichimoku == nil {
		return false
	}
	return prev.Ichimoku.Tenkan >= prev.Ichimoku.Kijun && cur.Ichimoku.Tenkan < cur.Ichimoku.Kijun
}

// CloudCrossUp reports the close moving from at-or-below the cloud top to above it.
func CloudCrossUp(prev, cur Snapshot, prevClose, curClose float64) bool {
	if prev.Ichimoku == nil || cur.Ichimoku == nil {
		return false
	}
	return prevClose <= prev.Ichimoku.CloudTop && curClose > cur.Ichimoku.CloudTop
}

// CloudCrossDown reports the close moving from at-or-above the cloud bottom to below it.
func CloudCrossDown(prev, cur Snapshot, prevClose, curClose float64) bool {
	if prev.Ichimoku == nil || cur.Ichimoku == nil {
		return false
	}
	return prevClose >= prev.Ichimoku.CloudBottom && curClose < cur.Ichimoku.CloudBottom
}

// GoldenCross reports EMA9 crossing above EMA20.
func GoldenCross(prev, cur Snapshot) bool {
	return prev.EMA9 <= prev.EMA20 && cur.EMA9 > cur.EMA20
}

// DeathCross reports EMA9 crossing below EMA20.
func DeathCross(prev, cur Snapshot) bool {
	return prev.EMA9 >= prev.EMA20 && cur.EMA9 < cur.EMA20
}
