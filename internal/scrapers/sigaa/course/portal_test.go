package course

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func jsfcljs(form, fields string) string {
	return fmt.Sprintf(
		`if(typeof jsfcljs == 'function'){jsfcljs(document.getElementById('%s'),{%s},'');}return false`,
		form, fields,
	)
}

type fakePortal struct {
	*httptest.Server

	mutex sync.Mutex
	// renders counts every rendered view, each view gets a new view state
	renders      int
	filesVersion int
	downloads    map[string]int
	expireOnce   map[string]bool
	// download links carry a key that the portal accepts only once
	keys     int
	usedKeys map[string]bool
	// repeatViewStates renders every view of a kind with the same view state
	repeatViewStates bool
}

func (p *fakePortal) viewState(prefix string) string {
	p.renders++
	if p.repeatViewStates {
		return prefix + "0"
	}
	return fmt.Sprintf("%s%d", prefix, p.renders)
}

func (p *fakePortal) downloadLink(id string) string {
	p.keys++
	return fmt.Sprintf(`'id':'%s','download':'1','key':'%d'`, id, p.keys)
}

func (p *fakePortal) setFilesVersion(v int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.filesVersion = v
}

func (p *fakePortal) downloadCount(id string) int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.downloads[id]
}

func newFakePortal(t *testing.T) *fakePortal {
	p := &fakePortal{
		filesVersion: 1,
		downloads:    map[string]int{},
		expireOnce:   map[string]bool{"10": true},
		usedKeys:     map[string]bool{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/sigaa/portais/discente/turmas.jsf", func(w http.ResponseWriter, r *http.Request) {
		p.mutex.Lock()
		defer p.mutex.Unlock()
		fmt.Fprint(w, p.classList())
	})
	mux.HandleFunc("/sigaa/ava/index.jsf", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form := r.PostForm

		p.mutex.Lock()
		defer p.mutex.Unlock()

		switch {
		case form.Get("idTurma") == "bad" || form.Get("javax.faces.ViewState") == "stale":
			fmt.Fprint(w, `<html><body><h2>Comportamento Inesperado!</h2></body></html>`)
		case form.Has("idTurma"):
			fmt.Fprint(w, p.classPage())
		case form.Get("download") != "":
			id := form.Get("id")
			p.downloads[id]++
			key := form.Get("key")
			if p.usedKeys[key] {
				http.Redirect(w, r, "/sigaa/ava/index.jsf", http.StatusFound)
				return
			}
			p.usedKeys[key] = true
			if p.expireOnce[id] {
				p.expireOnce[id] = false
				http.Redirect(w, r, "/sigaa/ava/index.jsf", http.StatusFound)
				return
			}
			w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="file-%s.txt"`, id))
			fmt.Fprintf(w, "contents of %s", id)
		case form.Get("menu") != "":
			fmt.Fprint(w, p.listing(form.Get("menu")))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

func (p *fakePortal) classList() string {
	return fmt.Sprintf(`<html><body>
<form id="formTurmas" action="/sigaa/ava/index.jsf"><input type="hidden" name="javax.faces.ViewState" value="%s"></form>
<table class="listagem"><tbody>
<tr><td class="periodo">2020.1</td></tr>
<tr><td>INF101 - Programação</td><td></td><td>30</td><td></td><td>SEG 08:00</td><td><a href="#" onclick="%s">Acessar</a></td></tr>
<tr><td>INF102 - Banco de Dados</td><td></td><td>25</td><td></td><td>TER 10:00</td><td><a href="#" onclick="%s">Acessar</a></td></tr>
</tbody></table>
</body></html>`,
		p.viewState("list"),
		jsfcljs("formTurmas", `'idTurma':'1001'`),
		jsfcljs("formTurmas", `'idTurma':'1002'`),
	)
}

func menuItem(label, menu string) string {
	return fmt.Sprintf(
		`<div onclick="%s"><div class="itemMenu">%s</div></div>`,
		jsfcljs("formMenu", fmt.Sprintf(`'formMenu:%s':'formMenu:%s','menu':'%s'`, menu, menu, menu)),
		label,
	)
}

func (p *fakePortal) classPage() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<html><body>
<form id="formMenu" action="/sigaa/ava/index.jsf"><input type="hidden" name="javax.faces.ViewState" value="%s"></form>
<form id="formAva" action="/sigaa/ava/index.jsf"><input type="hidden" name="javax.faces.ViewState" value="%s"></form>
<div id="barraEsquerda">`, p.viewState("cls"), p.viewState("ava"))
	sb.WriteString(menuItem("Arquivos", "files"))
	sb.WriteString(menuItem("Notícias", "news"))
	sb.WriteString(menuItem("Questionários", "quizzes"))
	sb.WriteString(menuItem("Tarefas", "homeworks"))
	sb.WriteString(menuItem("Conteúdo/Página web", "contents"))
	sb.WriteString(menuItem("Frequência", "absences"))
	sb.WriteString(menuItem("Ver Notas", "grades"))
	sb.WriteString(`</div>
<div><div><div class="rich-stglpanel-header headerBloco">Avaliações</div></div>
<ul><li><span class="data">10/08/2020</span><span class="descricao">Prova 1</span></li></ul></div>
<div id="conteudo">
<div class="topico-aula">
	<div class="titulo">Aula 1 (03/08/2020 - 07/08/2020)</div>
	<div class="conteudotopico">
		<p>Introdução à <b>disciplina</b></p>`)
	fmt.Fprintf(&sb, `
		<span id="a1"><div class="item"><img src="/img/portal_turma/arquivo.png"><span><a href="#" onclick="%s">Aula 1</a></span><div class="descricao-item">Slides da aula</div></div></span>
		<span id="a2"><div class="item"><img src="/img/portal_turma/questionario.png"><span><a href="#" onclick="%s">Questionário 1</a></span><div class="descricao-item">Inicia em 03/08/2020 às 08:00 e termina em 10/08/2020 às 23:59</div></div></span>
		<span id="a3"><div class="item"><img src="/img/portal_turma/video.png"><span id="v1"><span id="v1t">Vídeo de apresentação</span></span><iframe src="https://video.example.com/1"></iframe><div class="descricao-item">Assista</div></div></span>
		<span id="a4"><div class="item"><img src="/img/portal_turma/pesquisa.png"><span><a href="#" onclick="%s">Pesquisa</a></span></div></span>
	</div>
</div>
</div>
</body></html>`,
		jsfcljs("formAva", `'id':'10','download':'1'`),
		jsfcljs("formAva", `'id':'50'`),
		jsfcljs("formAva", `'id':'90'`),
	)
	return sb.String()
}

func (p *fakePortal) listing(menu string) string {
	link := func(fields string) string {
		return fmt.Sprintf(`<a href="#" onclick="%s">abrir</a>`, jsfcljs("formAtividades", fields))
	}

	var rows string
	switch menu {
	case "files":
		rows = fmt.Sprintf(`<tr class="linhaPar"><td>Aula 1</td><td>Slides da aula</td><td></td><td>%s</td></tr>`, link(p.downloadLink("10")))
		if p.filesVersion == 1 {
			rows += fmt.Sprintf(`<tr class="linhaImpar"><td>Lista 1</td><td>Exercícios</td><td></td><td>%s</td></tr>`, link(p.downloadLink("11")))
		} else {
			rows += fmt.Sprintf(`<tr class="linhaImpar"><td>Lista 2</td><td>Mais exercícios</td><td></td><td>%s</td></tr>`, link(p.downloadLink("12")))
		}
	case "news":
		rows = fmt.Sprintf(`<tr class="linhaPar"><td>Aviso</td><td>03/08/2020 10:00</td><td>%s</td></tr>`, link(`'id':'70'`))
	case "quizzes":
		rows = fmt.Sprintf(`<tr class="linhaPar"><td>Questionário 1</td><td>03/08/2020 08:00</td><td>10/08/2020 23:59</td><td>%s</td><td></td></tr>`, link(`'id':'50','enviar':'1'`))
	case "homeworks":
		rows = fmt.Sprintf(`<tr class="linhaPar"><td></td><td>Tarefa 1</td><td>01/09/2020 00:00 a 07/09/2020 23:59</td><td>Não</td><td></td><td>%s</td><td></td></tr>
<tr class="linhaPar"><td colspan="7">Entregar o relatório</td></tr>`, link(`'id':'60'`))
	case "contents":
		rows = fmt.Sprintf(`<tr class="linhaPar"><td>Página</td><td>05/08/2020</td><td>%s</td></tr>`, link(`'id':'80'`))
	case "absences":
		return `<html><body><table class="listing">
<tr class="a"><td>03/08/2020</td><td>Presente</td></tr>
<tr class="b"><td>04/08/2020</td><td>2 Falta(s)</td></tr>
<tr class="a"><td>05/08/2020</td><td></td></tr>
</table><div class="botoes-show">Total de Faltas: 2<br>Máximo de Faltas Permitido: 18</div></body></html>`
	case "grades":
		return `<html><body>
<input type="hidden" id="denAval_1" value="Prova 1"><input type="hidden" id="abrevAval_1" value="P1"><input type="hidden" id="pesoAval_1" value="1">
<input type="hidden" id="denAval_2" value="Trabalho"><input type="hidden" id="abrevAval_2" value="T1"><input type="hidden" id="pesoAval_2" value="2">
<table><thead>
<tr><th></th><th>Matrícula</th><th>Nome</th><th colspan="3">Unid. 1</th><th>Resultado</th><th>Faltas</th><th>Sit.</th></tr>
<tr><th></th><th></th><th></th><th id="aval_1"></th><th id="aval_2"></th><th id="aval_"></th><th></th><th></th><th></th></tr>
</thead><tbody>
<tr><td></td><td>2020001</td><td>Fulano</td><td>8,5</td><td>7,0</td><td>7,5</td><td>-</td><td>2</td><td>APR</td></tr>
</tbody></table></body></html>`
	}

	return fmt.Sprintf(`<html><body>
<form id="formAtividades" action="/sigaa/ava/index.jsf"><input type="hidden" name="javax.faces.ViewState" value="%s"></form>
<table class="listing"><tbody>%s</tbody></table>
</body></html>`, p.viewState("lst"), rows)
}
