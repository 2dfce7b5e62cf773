// Package domain define contratos e tipos de domínio para controle de admissão:
// escopos, políticas de janela deslizante, decisões, o Counter Store e estatísticas.
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// de detalhes de infraestrutura.
package domain
