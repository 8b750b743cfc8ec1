package postgres

const (
	// queryAppendRecord inserts one resolution event; rows are never updated.
	queryAppendRecord = `
		INSERT INTO weather_cache (location, temperature, recorded_at)
		VALUES ($1, $2, $3)
	`

	// queryLatestRecord relies on idx_weather_cache_location_recorded_at.
	queryLatestRecord = `
		SELECT location, temperature, recorded_at
		FROM weather_cache
		WHERE location = $1
		ORDER BY recorded_at DESC
		LIMIT 1
	`

	querySchemaExists = `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_name = 'weather_cache'
		)
	`
)
