package registry

// DefaultSources returns the built-in reference servers, one per country
func DefaultSources() []TimeSource {
	return []TimeSource{
		{Label: "Brasil", Address: "a.st1.ntp.br"},
		{Label: "EUA", Address: "time.google.com"},
		{Label: "Reino Unido", Address: "time.windows.com"},
		{Label: "Japão", Address: "ntp.jst.mfeed.ad.jp"},
		{Label: "Alemanha", Address: "ptbtime1.ptb.de"},
	}
}

// DefaultZones returns the built-in zone catalog: the Brazilian zones first,
// then one zone per reference server country
func DefaultZones() []ZoneDefinition {
	return []ZoneDefinition{
		{Identifier: "America/Sao_Paulo", Label: "São Paulo (Horário de Brasília)"},
		{Identifier: "America/Manaus", Label: "Manaus"},
		{Identifier: "America/Cuiaba", Label: "Cuiabá"},
		{Identifier: "America/Fortaleza", Label: "Fortaleza"},
		{Identifier: "America/Noronha", Label: "Fernando de Noronha"},
		{Identifier: "America/New_York", Label: "EUA - New York"},
		{Identifier: "Europe/London", Label: "Reino Unido - London"},
		{Identifier: "Asia/Tokyo", Label: "Japão - Tokyo"},
		{Identifier: "Europe/Berlin", Label: "Alemanha - Berlin"},
	}
}

// DefaultRegistry returns a registry holding DefaultSources
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultSources())
	if err != nil {
		panic("registry: invalid built-in sources: " + err.Error())
	}
	return r
}

// DefaultCatalog returns a catalog holding DefaultZones
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultZones())
	if err != nil {
		panic("registry: invalid built-in zones: " + err.Error())
	}
	return c
}
