package registry

// DefaultColor is assigned to sites created or imported without a color.
const DefaultColor = "#808080"

// Seed is one entry of the default site set installed on first load.
type Seed struct {
	Name  string
	URL   string
	Color string
}

// Config configures the registry service.
type Config struct {
	// Seeds is the site set written when the store holds no sites.
	Seeds []Seed
}

func (c *Config) defaults() {
	if len(c.Seeds) == 0 {
		c.Seeds = defaultSeeds()
	}
}

func defaultConfig() *Config {
	c := &Config{}
	c.defaults()
	return c
}

func defaultSeeds() []Seed {
	return []Seed{
		{Name: "Wikipedia", URL: "https://www.wikipedia.org", Color: "#4a90d9"},
		{Name: "Hacker News", URL: "https://news.ycombinator.com", Color: "#ff6600"},
		{Name: "OpenStreetMap", URL: "https://www.openstreetmap.org", Color: "#7ebc6f"},
	}
}
