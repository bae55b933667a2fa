package models

// All lists every persisted model in migration order (parents first).
func All() []interface{} {
	return []interface{}{
		&Role{},
		&Department{},
		&Pillar{},
		&User{},
		&RefreshToken{},
		&Kpi{},
		&UploadedFile{},
		&KpiProgress{},
		&Milestone{},
		&AiPrediction{},
	}
}
