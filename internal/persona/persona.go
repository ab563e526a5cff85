// Package persona holds every user-facing text the bot speaks: the system
// instruction, command replies and the polite notices used on degraded
// paths. The built-in catalog is Brazilian Portuguese; any field can be
// overridden from a YAML file.
package persona

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog is the full set of texts the bot can emit.
type Catalog struct {
	SystemPrompt string `yaml:"systemPrompt"`

	Welcome    string     `yaml:"welcome"`
	Help       string     `yaml:"help"`
	About      string     `yaml:"about"`
	MenuPrompt string     `yaml:"menuPrompt"`
	MenuRows   [][]string `yaml:"menuRows"`

	ChatPrompt     string `yaml:"chatPrompt"`
	ResetDone      string `yaml:"resetDone"`
	ResetShortcut  string `yaml:"resetShortcut"`
	UnknownCommand string `yaml:"unknownCommand"`

	ModelFailure    string `yaml:"modelFailure"`
	AudioFailure    string `yaml:"audioFailure"`
	ImageFailure    string `yaml:"imageFailure"`
	EmptyTranscript string `yaml:"emptyTranscript"`

	AudioPrefix string `yaml:"audioPrefix"`
	ImagePrompt string `yaml:"imagePrompt"`

	QuotesHeader  string `yaml:"quotesHeader"`
	QuotesFailure string `yaml:"quotesFailure"`
	QuotesEmpty   string `yaml:"quotesEmpty"`
}

// Default returns the built-in catalog.
func Default() Catalog {
	return Catalog{
		SystemPrompt: "Voce e um atendente virtual brasileiro, cordial e organizado, que responde sempre em portugues do Brasil. " +
			"Mantenha um tom humano, empatico e claro, estruturando as respostas em paragrafos curtos ou listas quando ajudar na compreensao. " +
			"Explique conceitos de forma simples, ofereca exemplos praticos quando fizer sentido e confirme se a pessoa ficou satisfeita com a solucao. " +
			"Deixe claro que voce e um bot especializado em tirar duvidas e consultar cotacoes de moedas, entregando informacoes em tempo real sempre que for solicitado. " +
			"Quando nao souber a resposta, admita a limitacao e sugira fontes confiaveis para pesquisa. " +
			"Sempre que perguntarem sobre suas capacidades, informe que consegue entender mensagens escritas, audios (transcrevendo-os automaticamente) e imagens. " +
			"Caso receba dados em tempo real (como cotacoes), incorpore-os de maneira clara destacando a fonte. " +
			"Ao receber cotacoes antigas do Banco Central (PTAX), lembre o usuario da data solicitada e que os valores sao oficiais.",

		Welcome: "Ola! Eu sou seu assistente virtual integrado com a OpenAI, especializado em tirar duvidas e trazer cotacoes em tempo real. " +
			"Posso explicar conceitos, trazer ideias para seus projetos e informar o valor atual de moedas como dolar, euro e mais. " +
			"Use o menu para ver atalhos rapidos ou simplesmente me envie uma mensagem.",

		Help: "Envie perguntas, audios ou imagens e eu responderei usando a API da OpenAI.\n" +
			"Sou um bot tira-duvidas que tambem consulta cotacoes de moedas em tempo real, ideal para acompanhar dolar, euro e outras moedas.\n" +
			"Para valores passados, mencione a moeda e a data (ex.: 'cotacao do dolar em 03/06/2024') que busco a PTAX oficial do Banco Central.\n" +
			"Audios sao transcritos automaticamente, imagens sao analisadas pelo modelo multimodal e voce pode usar o menu para verificar cotacoes a qualquer momento.\n" +
			"\n" +
			"Comandos disponiveis:\n" +
			"/start - mensagem de boas-vindas\n" +
			"/help - guia rapido\n" +
			"/menu - exibe os atalhos principais\n" +
			"/cotacoes - mostra as principais moedas em tempo real\n" +
			"/reset - limpa o historico da conversa",

		About: "Sou um bot de exemplo para trabalhos academicos integrando Telegram e OpenAI. " +
			"Fui estruturado para ser facil de manter, seguro com variaveis de ambiente e pronto " +
			"para evoluir com novas funcoes.",

		MenuPrompt: "Selecione um atalho ou envie sua mensagem. O bot tambem pode verificar cotacoes em tempo real:",
		MenuRows: [][]string{
			{"Conversar com IA"},
			{"Verificar cotacoes"},
			{"Ajuda", "Resetar conversa"},
		},

		ChatPrompt:     "Ok, me conte como posso ajudar hoje.",
		ResetDone:      "Historico apagado. Podemos recomecar!",
		ResetShortcut:  "Historico apagado. Pode mandar sua proxima pergunta!",
		UnknownCommand: "Comando nao reconhecido. Use /help para ver as opcoes.",

		ModelFailure: "Tive um problema para falar com a IA agora. " +
			"Tente novamente em instantes ou envie a mensagem mais tarde.",
		AudioFailure:    "Nao consegui entender o audio agora. Pode tentar novamente ou enviar em texto?",
		ImageFailure:    "Nao consegui abrir a imagem que voce enviou. Pode tentar novamente?",
		EmptyTranscript: "Audio recebido, mas a transcricao veio vazia.",

		AudioPrefix: "[Audio do usuario]",
		ImagePrompt: "Analise a imagem enviada e comente os pontos principais.",

		QuotesHeader:  "Cotacoes em tempo real via AwesomeAPI:",
		QuotesFailure: "Nao consegui consultar as cotacoes agora. Tente novamente em instantes.",
		QuotesEmpty:   "Nao encontrei cotacoes atualizadas neste momento, mas posso tentar novamente se voce quiser.",
	}
}

// Load returns the default catalog with the YAML file at path overlaid on
// top. A missing path is fine; a broken file is an error so typos do not
// silently fall back to the defaults.
func Load(path string, logger *slog.Logger) (Catalog, error) {
	catalog := Default()
	if path == "" {
		return catalog, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("persona file does not exist, using built-in texts", "path", path)
			return catalog, nil
		}
		return catalog, fmt.Errorf("read persona file: %w", err)
	}

	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return Default(), fmt.Errorf("parse persona file %s: %w", path, err)
	}
	logger.Info("persona loaded", "path", path)
	return catalog, nil
}
