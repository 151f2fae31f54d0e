package bank

import "github.com/agriprep/agriprep/internal/model"

// catalog describes the review areas shown to students. Kept alongside the
// bank because it enumerates the same closed subject set.
var catalog = []model.SubjectInfo{
	{
		ID:   model.SubjectCropScience,
		Name: "Crop Science",
		Desc: "Study of crop production, physiology, genetics, and sustainable farming systems.",
		Topics: []string{
			"Plant Physiology and Morphology",
			"Crop Production Systems",
			"Plant Breeding and Genetics",
			"Horticulture and Floriculture",
		},
	},
	{
		ID:   model.SubjectSoilScience,
		Name: "Soil Science",
		Desc: "Soil properties, fertility, classification, and conservation methods.",
		Topics: []string{
			"Soil Formation and Classification",
			"Soil Fertility and Nutrient Management",
			"Soil Conservation Techniques",
		},
	},
	{
		ID:   model.SubjectCropProtection,
		Name: "Crop Protection",
		Desc: "Integrated Pest Management (IPM), diseases, weeds, and pesticide safety.",
		Topics: []string{
			"Integrated Pest Management (IPM)",
			"Pesticide Safety and Application",
			"Biological Control Methods",
		},
	},
	{
		ID:   model.SubjectAnimalScience,
		Name: "Animal Science",
		Desc: "Animal nutrition, breeding, health, and livestock production management.",
		Topics: []string{
			"Animal Nutrition and Feeding",
			"Livestock Health and Disease Control",
			"Dairy and Poultry Production",
		},
	},
	{
		ID:   model.SubjectAgriEconomics,
		Name: "Agricultural Economics",
		Desc: "Farm management, marketing, pricing, and agricultural policy analysis.",
		Topics: []string{
			"Farm Management and Accounting",
			"Agricultural Market Analysis",
			"Cooperative Economics",
		},
	},
	{
		ID:   model.SubjectAgriExtension,
		Name: "Agricultural Extension",
		Desc: "Communication, education, and technology transfer in rural communities.",
		Topics: []string{
			"Extension Methodologies",
			"Rural Development Approaches",
			"Program Planning and Evaluation",
		},
	},
}

// Catalog returns the subject areas in display order.
func Catalog() []model.SubjectInfo {
	return catalog
}

func subjectName(s model.Subject) string {
	for _, info := range catalog {
		if info.ID == s {
			return info.Name
		}
	}
	return string(s)
}
