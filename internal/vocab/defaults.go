package vocab

var defaultKeywords = []string{
	"perfil",
	"perfis",
	"persona",
	"personas",
	"segmentação",
	"público-alvo",
	"usuário",
	"usuários",
	"cliente",
	"clientes",
	"home",
	"personalização",
	"jornada do usuário",
	"experiência do usuário",
	"pesquisa",
	"entrevista",
	"descoberta",
	"discovery",
	"produto",
	"funcionalidade",
	"roadmap",
	"métricas",
	"conversão",
	"engajamento",
	"retenção",
	"okr",
	"kpi",
	"estratégia",
	"objetivo",
	"stone",
	"ton",
	"maquininha",
	"aplicativo",
	"api",
	"dados",
}

var defaultContexts = []ContextGroup{
	{Label: "perfis_usuarios", Patterns: []string{
		"perfil", "perfis", "persona", "personas", "segmentação", "público-alvo",
		"usuário", "usuários", "cliente", "clientes", "comportamento",
	}},
	{Label: "pesquisa", Patterns: []string{
		"pesquisa", "entrevista", "entrevistas", "survey", "questionário",
		"descoberta", "discovery", "insight", "insights",
	}},
	{Label: "produto", Patterns: []string{
		"produto", "funcionalidade", "feature", "roadmap", "home",
		"personalização", "jornada", "experiência",
	}},
	{Label: "metricas", Patterns: []string{
		"métrica", "métricas", "kpi", "okr", "conversão", "engajamento",
		"retenção", "taxa", "indicador",
	}},
	{Label: "estrategia", Patterns: []string{
		"estratégia", "objetivo", "objetivos", "meta", "metas", "visão",
		"prioridade", "prioridades",
	}},
	{Label: "tecnologia", Patterns: []string{
		"api", "sistema", "plataforma", "arquitetura", "aplicativo", "app",
		"dados", "integração", "tecnologia",
	}},
}

var defaultSynonyms = map[string][]string{
	"perfil": {
		"personas", "segmentação", "público-alvo", "características dos usuários",
		"comportamento", "necessidades", "tipos de usuários",
	},
	"usuário":        {"cliente", "lojista", "empreendedor", "público"},
	"cliente":        {"usuário", "lojista", "empreendedor"},
	"persona":        {"perfil", "arquétipo", "segmento"},
	"home":           {"página inicial", "tela inicial", "personalização"},
	"métrica":        {"indicador", "kpi", "okr", "resultado"},
	"pesquisa":       {"entrevista", "estudo", "descoberta", "insights"},
	"objetivo":       {"meta", "propósito", "estratégia"},
	"desafio":        {"problema", "dificuldade", "dor"},
	"jornada":        {"fluxo", "experiência", "etapas"},
	"funcionalidade": {"feature", "recurso", "capacidade"},
}

var defaultProfileIntent = []string{
	"perfil", "perfis", "persona", "personas", "tipos de usuário",
	"tipos de usuários", "tipos de cliente", "segmentos", "público-alvo",
}

var defaultProfileTerms = []string{
	"personas",
	"segmentação de usuários",
	"público-alvo",
	"características",
	"comportamento",
	"necessidades",
	"perfil do cliente",
}

// Default returns the built-in vocabulary.
func Default() *Vocabulary {
	return New(defaultKeywords, defaultContexts, defaultSynonyms, defaultProfileIntent, defaultProfileTerms)
}
