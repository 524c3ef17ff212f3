package catalog

import (
	"time"

	"github.com/aegisshield/compliance-tracker/internal/compliance"
)

// DefaultFrameworks returns the built-in framework definitions
func DefaultFrameworks() []compliance.Framework {
	return []compliance.Framework{
		csrdFramework(),
		secClimateFramework(),
		ghgProtocolFramework(),
	}
}

func annualPeriod(graceDays int) compliance.ReportingPeriodConfig {
	return compliance.ReportingPeriodConfig{
		PeriodType:       "annual",
		PeriodStartMonth: 1,
		PeriodStartDay:   1,
		GracePeriodDays:  graceDays,
	}
}

func csrdFramework() compliance.Framework {
	return compliance.Framework{
		ID:              "csrd-2023",
		Name:            "Corporate Sustainability Reporting Directive",
		Version:         "2023.1",
		Description:     "EU regulation requiring companies to disclose information on environmental, social and governance factors.",
		Category:        "sustainability",
		Regions:         []string{"EU", "EEA"},
		Sectors:         []string{WildcardSector},
		EffectiveDate:   compliance.Date(2024, time.January, 1),
		LastUpdated:     compliance.Date(2023, time.July, 31),
		Website:         "https://ec.europa.eu/info/business-economy-euro/company-reporting-and-auditing/company-reporting/corporate-sustainability-reporting_en",
		ReportingPeriod: annualPeriod(90),
		Deadlines: []compliance.DeadlineConfig{
			{
				ID:           "csrd-submission",
				Name:         "CSRD Submission",
				Description:  "Deadline for submitting the annual sustainability report",
				RelativeDays: 120,
				Category:     "submission",
			},
			{
				ID:           "csrd-publication",
				Name:         "CSRD Publication",
				Description:  "Deadline for publishing the sustainability report",
				RelativeDays: 150,
				Category:     "publication",
			},
		},
		Requirements: []compliance.Requirement{
			{
				ID:            "csrd-req-1",
				Name:          "Environmental impact reporting",
				Description:   "Disclosure of company environmental impact including GHG emissions, energy use, and resource consumption.",
				Category:      compliance.CategoryDisclosure,
				Level:         compliance.LevelMandatory,
				EvidenceTypes: []string{"emissions-data", "energy-data", "resource-data"},
			},
			{
				ID:            "csrd-req-2",
				Name:          "Social impact reporting",
				Description:   "Disclosure of company social impact including workforce conditions, diversity, and community engagement.",
				Category:      compliance.CategoryDisclosure,
				Level:         compliance.LevelMandatory,
				EvidenceTypes: []string{"workforce-data", "diversity-data", "community-data"},
			},
			{
				ID:            "csrd-req-3",
				Name:          "Governance reporting",
				Description:   "Disclosure of company governance including board composition, ethical practices, and risk management.",
				Category:      compliance.CategoryDisclosure,
				Level:         compliance.LevelMandatory,
				EvidenceTypes: []string{"board-data", "ethics-data", "risk-data"},
			},
			{
				ID:            "csrd-req-4",
				Name:          "Double materiality assessment",
				Description:   "Assessment of both the impact of environmental and social factors on the company and the company's impact on society and environment.",
				Category:      compliance.CategoryMeasurement,
				Level:         compliance.LevelMandatory,
				EvidenceTypes: []string{"materiality-assessment"},
			},
			{
				ID:            "csrd-req-5",
				Name:          "Transition plan disclosure",
				Description:   "Disclosure of transition plans towards a sustainable and climate-neutral economy.",
				Category:      compliance.CategoryDisclosure,
				Level:         compliance.LevelMandatory,
				EvidenceTypes: []string{"transition-plan"},
			},
		},
	}
}

func secClimateFramework() compliance.Framework {
	return compliance.Framework{
		ID:              "sec-climate-2023",
		Name:            "SEC Climate Disclosure Rule",
		Version:         "2023.1",
		Description:     "U.S. Securities and Exchange Commission rules requiring climate-related disclosures for investors.",
		Category:        "emissions",
		Regions:         []string{"US"},
		Sectors:         []string{"public-companies"},
		EffectiveDate:   compliance.Date(2024, time.January, 1),
		LastUpdated:     compliance.Date(2023, time.March, 15),
		Website:         "https://www.sec.gov/climate-disclosure",
		ReportingPeriod: annualPeriod(60),
		Deadlines: []compliance.DeadlineConfig{
			{
				ID:           "sec-submission",
				Name:         "SEC Filing",
				Description:  "Deadline for filing climate disclosures with the SEC",
				RelativeDays: 90,
				Category:     "submission",
			},
		},
		Requirements: []compliance.Requirement{
			{
				ID:            "sec-req-1",
				Name:          "GHG emissions disclosure",
				Description:   "Disclosure of Scope 1 and Scope 2 greenhouse gas emissions, and Scope 3 emissions if material or included in targets.",
				Category:      compliance.CategoryDisclosure,
				Level:         compliance.LevelMandatory,
				EvidenceTypes: []string{"ghg-emissions-data"},
			},
			{
				ID:            "sec-req-2",
				Name:          "Climate-related risks",
				Description:   "Disclosure of material climate-related risks and their impact on business strategy, financial planning, and outlook.",
				Category:      compliance.CategoryDisclosure,
				Level:         compliance.LevelMandatory,
				EvidenceTypes: []string{"risk-assessment"},
			},
			{
				ID:            "sec-req-3",
				Name:          "Climate targets and goals",
				Description:   "Disclosure of climate-related targets or goals, including transition plans and progress metrics.",
				Category:      compliance.CategoryDisclosure,
				Level:         compliance.LevelMandatory,
				EvidenceTypes: []string{"targets-data", "transition-plan"},
			},
			{
				ID:            "sec-req-4",
				Name:          "Climate risk governance",
				Description:   "Disclosure of board and management oversight of climate-related risks.",
				Category:      compliance.CategoryDisclosure,
				Level:         compliance.LevelMandatory,
				EvidenceTypes: []string{"governance-data"},
			},
		},
	}
}

// GHG Protocol is a voluntary standard and has no filing deadlines.
func ghgProtocolFramework() compliance.Framework {
	return compliance.Framework{
		ID:              "ghg-protocol",
		Name:            "Greenhouse Gas Protocol",
		Version:         "2023.1",
		Description:     "Standardized frameworks for measuring and managing greenhouse gas emissions.",
		Category:        "emissions",
		Regions:         []string{WildcardRegion},
		Sectors:         []string{WildcardSector},
		EffectiveDate:   compliance.Date(2001, time.January, 1),
		LastUpdated:     compliance.Date(2023, time.January, 1),
		Website:         "https://ghgprotocol.org/",
		ReportingPeriod: annualPeriod(90),
		Deadlines:       []compliance.DeadlineConfig{},
		Requirements: []compliance.Requirement{
			{
				ID:            "ghg-req-1",
				Name:          "Scope 1 emissions calculation",
				Description:   "Calculation of direct GHG emissions from owned or controlled sources.",
				Category:      compliance.CategoryMeasurement,
				Level:         compliance.LevelMandatory,
				EvidenceTypes: []string{"emissions-data", "calculation-methodology"},
			},
			{
				ID:            "ghg-req-2",
				Name:          "Scope 2 emissions calculation",
				Description:   "Calculation of indirect GHG emissions from purchased electricity, steam, heating, and cooling.",
				Category:      compliance.CategoryMeasurement,
				Level:         compliance.LevelMandatory,
				EvidenceTypes: []string{"emissions-data", "calculation-methodology"},
			},
			{
				ID:            "ghg-req-3",
				Name:          "Scope 3 emissions calculation",
				Description:   "Calculation of all other indirect emissions in the value chain.",
				Category:      compliance.CategoryMeasurement,
				Level:         compliance.LevelRecommended,
				EvidenceTypes: []string{"emissions-data", "calculation-methodology"},
			},
			{
				ID:            "ghg-req-4",
				Name:          "Base year definition",
				Description:   "Selection and calculation of base year emissions for comparison.",
				Category:      compliance.CategoryMeasurement,
				Level:         compliance.LevelMandatory,
				EvidenceTypes: []string{"base-year-data"},
			},
			{
				ID:            "ghg-req-5",
				Name:          "GHG inventory quality management",
				Description:   "Implementation of quality management system for GHG inventory.",
				Category:      compliance.CategoryVerification,
				Level:         compliance.LevelRecommended,
				EvidenceTypes: []string{"quality-system-documentation"},
			},
		},
	}
}
