// Package docqa orquestra os dois pontos de entrada do gateway:
//
//   - UploadPipeline: cota global -> cota do cliente -> validação -> extração -> sessão
//   - QueryPipeline: validação -> cota de perguntas do cliente -> sessão -> completion
//
// Os pipelines só compartilham o limiter e o session store, recebidos por injeção.
// Toda falha vira um *Error com Kind (admissão, validação, não encontrado, upstream).
package docqa
