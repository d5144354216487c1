package scoring

// EstimateQuality maps text metrics to a coarse effort estimate in
// {1.0, 1.5, ..., 4.5}. Rows are checked in order and the first match wins.
// It is a proxy for effort, not a judgement of content.
func EstimateQuality(m TextMetrics) float64 {
	switch {
	case m.Words <= 10 || m.ShortAlphaToken:
		return 1.0
	case m.Words <= 30 && m.Sentences <= 2:
		return 1.5
	case m.Words <= 60 && !m.HasStructure:
		return 2.0
	case m.Words <= 100:
		if m.HasStructure {
			return 3.0
		}
		return 2.5
	case m.Words <= 150:
		if m.WordsPerSentence > 15 {
			return 3.5
		}
		return 3.0
	case m.Words <= 250:
		if m.WordsPerSentence > 12 {
			return 4.0
		}
		return 3.5
	default:
		if m.WordsPerSentence > 10 {
			return 4.5
		}
		return 4.0
	}
}

// QualityOf measures text and estimates its quality in one step.
func QualityOf(text string) float64 {
	return EstimateQuality(Measure(text))
}
