// Package ratelimit fornece adapters HTTP (net/http) para o controle de admissão.
//
// Visão geral (camadas):
//
//   - domain: escopos, políticas, decisões e contratos (sem net/http nem Redis)
//   - application: casos de uso (janela deslizante, burst guard, vagas) sem net/http
//   - infra: implementações concretas (Redis/Lua, memória, token bucket, semáforo)
//   - ratelimit (este pacote): middlewares HTTP + extração de chave + headers
//
// Fluxo no gateway:
//
//  1. Extrai a chave do cliente (header/XFF/RemoteAddr) e guarda no contexto
//  2. Burst guard por cliente (429) e limite de concorrência (503)
//  3. Os handlers chamam os pipelines, que checam as cotas diárias (janela deslizante)
//  4. WriteDecisionHeaders traduz a Decision em X-RateLimit-* / Retry-After
package ratelimit
