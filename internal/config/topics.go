package config

// DefaultVideoTopics is the closed topic catalog used by the analysis stage.
// Topic values persisted downstream always match this casing.
var DefaultVideoTopics = []string{
	"Technology",
	"Science",
	"Education",
	"History",
	"Geography",
	"Travel",
	"Food",
	"Cooking",
	"Health",
	"Fitness",
	"Medicine",
	"Psychology",
	"Philosophy",
	"Religion",
	"Politics",
	"Economics",
	"Business",
	"Finance",
	"Marketing",
	"Entrepreneurship",
	"Career",
	"Law",
	"Environment",
	"Nature",
	"Animals",
	"Space",
	"Mathematics",
	"Physics",
	"Chemistry",
	"Biology",
	"Engineering",
	"Architecture",
	"Art",
	"Music",
	"Cinema",
	"Literature",
	"Fashion",
	"Design",
	"Photography",
	"Sports",
	"Games",
	"Entertainment",
	"Celebrities",
	"News",
	"Society",
	"Culture",
	"Languages",
	"Relationships",
	"Family",
	"Parenting",
	"Lifestyle",
	"Transportation",
	"Agriculture",
	"Military",
	"Crime",
}
